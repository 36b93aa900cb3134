package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/google/uuid"
)

// PgAuditRepository implements AuditRepository using pgx.
type PgAuditRepository struct{}

// NewPgAuditRepository creates a new PgAuditRepository.
func NewPgAuditRepository() *PgAuditRepository {
	return &PgAuditRepository{}
}

func (r *PgAuditRepository) Insert(ctx context.Context, db DBTX, evt *domain.AuditEvent) error {
	_, err := db.Exec(ctx, `
		INSERT INTO data_access_audit
		  (actor, actor_role, action, resource, classification, details, risk_score, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		evt.Actor, string(evt.ActorRole), evt.Action, evt.Resource,
		string(evt.Classification), evt.Details, evt.RiskScore, evt.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *PgAuditRepository) CountByActionSince(ctx context.Context, db DBTX, cutoff time.Time) (map[string]int, error) {
	rows, err := db.Query(ctx, `
		SELECT action, COUNT(*) FROM data_access_audit
		WHERE occurred_at > $1
		GROUP BY action`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("count audit events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scan audit count: %w", err)
		}
		counts[action] = count
	}
	return counts, rows.Err()
}

// PgDownloadRepository implements DownloadRepository using pgx.
type PgDownloadRepository struct{}

// NewPgDownloadRepository creates a new PgDownloadRepository.
func NewPgDownloadRepository() *PgDownloadRepository {
	return &PgDownloadRepository{}
}

func (r *PgDownloadRepository) Insert(ctx context.Context, db DBTX, act *domain.DownloadActivity) error {
	_, err := db.Exec(ctx, `
		INSERT INTO download_activity
		  (user_id, user_name, user_role, file_name, file_type, record_count,
		   classification, ip_address, watermarked, suspicious, downloaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		act.UserID, act.UserName, string(act.UserRole), act.FileName, act.FileType,
		act.RecordCount, string(act.Classification), act.IPAddress,
		act.Watermarked, act.Suspicious, act.DownloadedAt)
	if err != nil {
		return fmt.Errorf("insert download activity: %w", err)
	}
	return nil
}

func (r *PgDownloadRepository) CountByUserSince(ctx context.Context, db DBTX, userID uuid.UUID, cutoff time.Time) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM download_activity
		WHERE user_id = $1 AND downloaded_at > $2`,
		userID, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count downloads: %w", err)
	}
	return count, nil
}

func (r *PgDownloadRepository) FlagSuspiciousSince(ctx context.Context, db DBTX, userID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE download_activity
		SET suspicious = true
		WHERE user_id = $1 AND downloaded_at > $2 AND suspicious = false`,
		userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("flag suspicious downloads: %w", err)
	}
	return tag.RowsAffected(), nil
}
