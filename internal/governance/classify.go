package governance

import (
	"context"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
)

// Classify upserts a column classification. The approval and watermark flags
// are derived from the level here and nowhere else.
func (e *Engine) Classify(ctx context.Context, db repository.DBTX, table, column string, level domain.Level, retentionDays int, classifiedBy string) (*domain.DataClassification, error) {
	if err := domain.ValidateTableName(table); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateColumnName(column); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if !level.Valid() {
		return nil, domain.ErrValidation("unknown classification level: " + string(level))
	}
	if retentionDays < 0 {
		return nil, domain.ErrValidation("retention days must not be negative")
	}

	c := &domain.DataClassification{
		TableName:         table,
		ColumnName:        column,
		Level:             level,
		RequiresApproval:  level.RequiresApproval(),
		WatermarkRequired: level.WatermarkRequired(),
		RetentionDays:     retentionDays,
		ClassifiedBy:      classifiedBy,
		UpdatedAt:         time.Now(),
	}
	if err := e.classifications.Upsert(ctx, db, c); err != nil {
		return nil, domain.ErrPersistence("classification upsert", err)
	}

	e.logger.Info("column classified",
		"table", table,
		"column", column,
		"level", string(level),
	)
	return c, nil
}

// GetClassification returns one column's classification, or nil.
func (e *Engine) GetClassification(ctx context.Context, db repository.DBTX, table, column string) (*domain.DataClassification, error) {
	if err := domain.ValidateTableName(table); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateColumnName(column); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	c, err := e.classifications.Find(ctx, db, table, column)
	if err != nil {
		return nil, domain.ErrPersistence("classification lookup", err)
	}
	return c, nil
}

// HighestClassification returns the most sensitive level across the table's
// classified columns. An unclassified table defaults to internal: ambiguity
// means "needs authentication", never public.
func (e *Engine) HighestClassification(ctx context.Context, db repository.DBTX, table string) (domain.Level, error) {
	if err := domain.ValidateTableName(table); err != nil {
		return "", domain.ErrValidation(err.Error())
	}

	cols, err := e.classifications.ListByTable(ctx, db, table)
	if err != nil {
		return "", domain.ErrPersistence("classification list", err)
	}
	if len(cols) == 0 {
		return domain.LevelInternal, nil
	}

	highest := domain.LevelPublic
	for _, c := range cols {
		highest = domain.MaxLevel(highest, c.Level)
	}
	return highest, nil
}
