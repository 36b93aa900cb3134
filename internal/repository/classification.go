package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/jackc/pgx/v5"
)

// PgClassificationRepository implements ClassificationRepository using pgx.
type PgClassificationRepository struct{}

// NewPgClassificationRepository creates a new PgClassificationRepository.
func NewPgClassificationRepository() *PgClassificationRepository {
	return &PgClassificationRepository{}
}

func (r *PgClassificationRepository) Upsert(ctx context.Context, db DBTX, c *domain.DataClassification) error {
	_, err := db.Exec(ctx, `
		INSERT INTO data_classification
		  (table_name, column_name, level, requires_approval, watermark_required,
		   retention_days, classified_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (table_name, column_name) DO UPDATE
		SET level = EXCLUDED.level,
		    requires_approval = EXCLUDED.requires_approval,
		    watermark_required = EXCLUDED.watermark_required,
		    retention_days = EXCLUDED.retention_days,
		    classified_by = EXCLUDED.classified_by,
		    updated_at = now()`,
		c.TableName, c.ColumnName, string(c.Level), c.RequiresApproval,
		c.WatermarkRequired, c.RetentionDays, c.ClassifiedBy)
	if err != nil {
		return fmt.Errorf("upsert classification: %w", err)
	}
	return nil
}

func (r *PgClassificationRepository) Find(ctx context.Context, db DBTX, table, column string) (*domain.DataClassification, error) {
	row := db.QueryRow(ctx, `
		SELECT table_name, column_name, level, requires_approval, watermark_required,
		       retention_days, classified_by, updated_at
		FROM data_classification
		WHERE table_name = $1 AND column_name = $2`, table, column)

	c, err := scanClassification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find classification: %w", err)
	}
	return c, nil
}

func (r *PgClassificationRepository) ListByTable(ctx context.Context, db DBTX, table string) ([]domain.DataClassification, error) {
	rows, err := db.Query(ctx, `
		SELECT table_name, column_name, level, requires_approval, watermark_required,
		       retention_days, classified_by, updated_at
		FROM data_classification
		WHERE table_name = $1
		ORDER BY column_name`, table)
	if err != nil {
		return nil, fmt.Errorf("list classifications: %w", err)
	}
	defer rows.Close()

	var out []domain.DataClassification
	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanClassification(row pgx.Row) (*domain.DataClassification, error) {
	c := &domain.DataClassification{}
	var level string
	err := row.Scan(&c.TableName, &c.ColumnName, &level, &c.RequiresApproval,
		&c.WatermarkRequired, &c.RetentionDays, &c.ClassifiedBy, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Level = domain.Level(level)
	return c, nil
}
