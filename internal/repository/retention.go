package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
)

// retentionTarget resolves an allow-listed logical table to its physical
// identifier and age column. Retention never composes SQL from caller input:
// an unknown table name is an error before any query is built.
type retentionTarget struct {
	ident     string
	ageColumn string
}

var retentionTargets = map[string]retentionTarget{
	"login_attempts":                {"login_attempts", "failed_at"},
	"session_tracking":              {"session_tracking", "created_at"},
	"privilege_escalation_tracking": {"privilege_escalation_tracking", "attempted_at"},
	"propagation_incidents":         {"propagation_incidents", "detected_at"},
	"blocked_sessions":              {"blocked_sessions", "blocked_at"},
	"download_activity":             {"download_activity", "downloaded_at"},
	"data_access_audit":             {"data_access_audit", "occurred_at"},
	"export_approval_requests":      {"export_approval_requests", "requested_at"},
}

// ResolveRetentionTarget reports whether the table is a permitted retention
// target.
func ResolveRetentionTarget(table string) bool {
	_, ok := retentionTargets[table]
	return ok
}

// PgRetentionRepository implements RetentionRepository using pgx.
type PgRetentionRepository struct{}

// NewPgRetentionRepository creates a new PgRetentionRepository.
func NewPgRetentionRepository() *PgRetentionRepository {
	return &PgRetentionRepository{}
}

func (r *PgRetentionRepository) ListPolicies(ctx context.Context, db DBTX, autoDeleteOnly bool) ([]domain.RetentionPolicy, error) {
	q := `
		SELECT table_name, retention_days, archive_before_delete, auto_delete, last_executed
		FROM retention_policies`
	if autoDeleteOnly {
		q += ` WHERE auto_delete = true`
	}
	q += ` ORDER BY table_name`

	rows, err := db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list retention policies: %w", err)
	}
	defer rows.Close()

	var policies []domain.RetentionPolicy
	for rows.Next() {
		var p domain.RetentionPolicy
		if err := rows.Scan(&p.TableName, &p.RetentionDays, &p.ArchiveBeforeDelete,
			&p.AutoDelete, &p.LastExecuted); err != nil {
			return nil, fmt.Errorf("scan retention policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (r *PgRetentionRepository) FetchExpiredRows(ctx context.Context, db DBTX, table string, cutoff time.Time) ([][]byte, error) {
	target, ok := retentionTargets[table]
	if !ok {
		return nil, domain.ErrValidation(fmt.Sprintf("table %q is not a retention target", table))
	}

	// Identifier comes from the closed map above, cutoff is parameterized.
	q := fmt.Sprintf(`SELECT row_to_json(t)::text FROM %s t WHERE t.%s < $1`,
		target.ident, target.ageColumn)
	rows, err := db.Query(ctx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("fetch expired rows from %s: %w", table, err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan expired row: %w", err)
		}
		docs = append(docs, []byte(doc))
	}
	return docs, rows.Err()
}

func (r *PgRetentionRepository) DeleteExpiredRows(ctx context.Context, db DBTX, table string, cutoff time.Time) (int64, error) {
	target, ok := retentionTargets[table]
	if !ok {
		return 0, domain.ErrValidation(fmt.Sprintf("table %q is not a retention target", table))
	}

	q := fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`, target.ident, target.ageColumn)
	tag, err := db.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired rows from %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRetentionRepository) MarkExecuted(ctx context.Context, db DBTX, table string, at time.Time) error {
	tag, err := db.Exec(ctx, `
		UPDATE retention_policies SET last_executed = $2 WHERE table_name = $1`,
		table, at)
	if err != nil {
		return fmt.Errorf("mark retention executed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("retention policy", table)
	}
	return nil
}
