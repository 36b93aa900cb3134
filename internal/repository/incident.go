package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
)

// PgIncidentRepository implements IncidentRepository using pgx.
type PgIncidentRepository struct{}

// NewPgIncidentRepository creates a new PgIncidentRepository.
func NewPgIncidentRepository() *PgIncidentRepository {
	return &PgIncidentRepository{}
}

func (r *PgIncidentRepository) InsertIncident(ctx context.Context, db DBTX, inc *domain.PropagationIncident) error {
	_, err := db.Exec(ctx, `
		INSERT INTO propagation_incidents
		  (id, kind, user_id, session_id, original_fingerprint, detected_fingerprint, severity, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inc.ID, string(inc.Kind), inc.UserID, inc.SessionID,
		inc.OriginalFingerprint, inc.DetectedFingerprint, string(inc.Severity), inc.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// BlockSession inserts the block unless an unexpired active one already
// covers the session. Expiry is lazy: an elapsed block row is deactivated
// here so it stops occupying the partial unique index, then the insert's
// conflict target makes the race safe — only one caller observes an
// affected row.
func (r *PgIncidentRepository) BlockSession(ctx context.Context, db DBTX, blk *domain.BlockedSession) (bool, error) {
	if _, err := db.Exec(ctx, `
		UPDATE blocked_sessions SET active = false
		WHERE session_id = $1 AND active = true AND expires_at <= now()`,
		blk.SessionID); err != nil {
		return false, fmt.Errorf("retire expired block: %w", err)
	}

	tag, err := db.Exec(ctx, `
		INSERT INTO blocked_sessions (session_id, fingerprint, reason, blocked_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (session_id) WHERE active DO NOTHING`,
		blk.SessionID, blk.Fingerprint, blk.Reason, blk.BlockedAt, blk.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("block session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgIncidentRepository) IsBlocked(ctx context.Context, db DBTX, sessionID string) (bool, error) {
	var blocked bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocked_sessions
			WHERE session_id = $1 AND active = true AND expires_at > now()
		)`, sessionID).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("check blocked session: %w", err)
	}
	return blocked, nil
}

func (r *PgIncidentRepository) ListRecentIncidents(ctx context.Context, db DBTX, limit int) ([]domain.PropagationIncident, error) {
	rows, err := db.Query(ctx, `
		SELECT id, kind, user_id, session_id, original_fingerprint, detected_fingerprint, severity, detected_at
		FROM propagation_incidents
		ORDER BY detected_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []domain.PropagationIncident
	for rows.Next() {
		var inc domain.PropagationIncident
		var kind, severity string
		if err := rows.Scan(&inc.ID, &kind, &inc.UserID, &inc.SessionID,
			&inc.OriginalFingerprint, &inc.DetectedFingerprint, &severity, &inc.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Kind = domain.IncidentKind(kind)
		inc.Severity = domain.Severity(severity)
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

func (r *PgIncidentRepository) CountIncidentsSince(ctx context.Context, db DBTX, kind domain.IncidentKind, cutoff time.Time) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM propagation_incidents
		WHERE kind = $1 AND detected_at > $2`,
		string(kind), cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return count, nil
}
