package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PgSessionRepository implements SessionRepository using pgx.
type PgSessionRepository struct{}

// NewPgSessionRepository creates a new PgSessionRepository.
func NewPgSessionRepository() *PgSessionRepository {
	return &PgSessionRepository{}
}

const sessionColumns = `session_id, user_id, role, fingerprint, ip_address, user_agent,
	 created_at, last_activity, last_rotation, active, rotated_from, terminated_at`

func (r *PgSessionRepository) Insert(ctx context.Context, db DBTX, rec *domain.SessionRecord) error {
	_, err := db.Exec(ctx, `
		INSERT INTO session_tracking
		  (session_id, user_id, role, fingerprint, ip_address, user_agent,
		   created_at, last_activity, last_rotation, active, rotated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10)`,
		rec.SessionID, rec.UserID, string(rec.Role), rec.Fingerprint,
		rec.IPAddress, rec.UserAgent, rec.CreatedAt, rec.LastActivity,
		rec.LastRotation, rec.RotatedFrom)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *PgSessionRepository) FindActive(ctx context.Context, db DBTX, sessionID string) (*domain.SessionRecord, error) {
	row := db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM session_tracking
		WHERE session_id = $1 AND active = true`, sessionID)

	rec, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return rec, nil
}

func (r *PgSessionRepository) TouchActivity(ctx context.Context, db DBTX, sessionID string) error {
	tag, err := db.Exec(ctx, `
		UPDATE session_tracking SET last_activity = now()
		WHERE session_id = $1 AND active = true`, sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("session", sessionID)
	}
	return nil
}

// Rotate deactivates the old session and inserts the successor in one CTE so
// the pair is all-or-nothing even without an explicit transaction.
func (r *PgSessionRepository) Rotate(ctx context.Context, db DBTX, oldSessionID string, successor *domain.SessionRecord) error {
	tag, err := db.Exec(ctx, `
		WITH retired AS (
			UPDATE session_tracking
			SET active = false, terminated_at = now()
			WHERE session_id = $1 AND active = true
			RETURNING session_id
		)
		INSERT INTO session_tracking
		  (session_id, user_id, role, fingerprint, ip_address, user_agent,
		   created_at, last_activity, last_rotation, active, rotated_from)
		SELECT $2, $3, $4, $5, $6, $7, $8, $9, $10, true, retired.session_id
		FROM retired`,
		oldSessionID,
		successor.SessionID, successor.UserID, string(successor.Role),
		successor.Fingerprint, successor.IPAddress, successor.UserAgent,
		successor.CreatedAt, successor.LastActivity, successor.LastRotation)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("session", oldSessionID)
	}
	return nil
}

func (r *PgSessionRepository) Terminate(ctx context.Context, db DBTX, sessionID string) error {
	_, err := db.Exec(ctx, `
		UPDATE session_tracking
		SET active = false, terminated_at = now()
		WHERE session_id = $1 AND active = true`, sessionID)
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}
	return nil
}

func (r *PgSessionRepository) TerminateAllForUser(ctx context.Context, db DBTX, userID uuid.UUID) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE session_tracking
		SET active = false, terminated_at = now()
		WHERE user_id = $1 AND active = true`, userID)
	if err != nil {
		return 0, fmt.Errorf("terminate user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.SessionRecord, error) {
	rec := &domain.SessionRecord{}
	var role string
	err := row.Scan(&rec.SessionID, &rec.UserID, &role, &rec.Fingerprint,
		&rec.IPAddress, &rec.UserAgent, &rec.CreatedAt, &rec.LastActivity,
		&rec.LastRotation, &rec.Active, &rec.RotatedFrom, &rec.TerminatedAt)
	if err != nil {
		return nil, err
	}
	rec.Role = domain.Role(role)
	return rec, nil
}
