package governance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
)

// RetentionResult summarizes one executed policy within a sweep.
type RetentionResult struct {
	Table        string `json:"table"`
	DeletedRows  int64  `json:"deleted_rows"`
	ArchivedRows int    `json:"archived_rows"`
	ArchiveRef   string `json:"archive_ref,omitempty"`
	Error        string `json:"error,omitempty"`
}

// EnforceRetentionPolicies runs every auto-delete policy: rows older than the
// cutoff are archived first when the policy asks for it, then deleted. A
// policy whose archive write fails is skipped — data is never deleted without
// its archive. Each policy is independent; one failure does not stop the
// sweep.
func (e *Engine) EnforceRetentionPolicies(ctx context.Context, db repository.DBTX) ([]RetentionResult, error) {
	policies, err := e.retention.ListPolicies(ctx, db, true)
	if err != nil {
		return nil, domain.ErrPersistence("retention policy list", err)
	}

	now := time.Now()
	results := make([]RetentionResult, 0, len(policies))
	for _, p := range policies {
		results = append(results, e.enforcePolicy(ctx, db, p, now))
	}
	return results, nil
}

func (e *Engine) enforcePolicy(ctx context.Context, db repository.DBTX, p domain.RetentionPolicy, now time.Time) RetentionResult {
	res := RetentionResult{Table: p.TableName}
	if !repository.ResolveRetentionTarget(p.TableName) {
		res.Error = "not a permitted retention target"
		e.logger.Error("retention policy names unknown table", "table", p.TableName)
		return res
	}

	cutoff := now.AddDate(0, 0, -p.RetentionDays)

	if p.ArchiveBeforeDelete {
		rows, err := e.retention.FetchExpiredRows(ctx, db, p.TableName, cutoff)
		if err != nil {
			res.Error = "archive fetch failed"
			e.logger.Error("retention archive fetch failed", "table", p.TableName, "error", err)
			return res
		}
		if len(rows) > 0 {
			ref, err := e.archive.WriteArchive(ctx, p.TableName, now, rows)
			if err != nil {
				res.Error = "archive write failed"
				e.logger.Error("retention archive write failed", "table", p.TableName, "error", err)
				return res
			}
			res.ArchivedRows = len(rows)
			res.ArchiveRef = ref
		}
	}

	deleted, err := e.retention.DeleteExpiredRows(ctx, db, p.TableName, cutoff)
	if err != nil {
		res.Error = "delete failed"
		e.logger.Error("retention delete failed", "table", p.TableName, "error", err)
		return res
	}
	res.DeletedRows = deleted

	if err := e.retention.MarkExecuted(ctx, db, p.TableName, now); err != nil {
		e.logger.Error("retention mark-executed failed", "table", p.TableName, "error", err)
	}

	details, _ := json.Marshal(map[string]interface{}{
		"table":          p.TableName,
		"retention_days": p.RetentionDays,
		"deleted_rows":   deleted,
		"archived_rows":  res.ArchivedRows,
		"archive_ref":    res.ArchiveRef,
	})
	e.auditEvent(ctx, db, &domain.AuditEvent{
		Actor:          "retention-engine",
		ActorRole:      domain.RoleAdmin,
		Action:         "retention_executed",
		Resource:       p.TableName,
		Classification: domain.LevelInternal,
		Details:        details,
		RiskScore:      20,
	})

	if err := e.outbox.Insert(ctx, db, domain.NewRetentionRunEvent(p.TableName, deleted, res.ArchivedRows > 0)); err != nil {
		e.logger.Error("retention event write failed", "table", p.TableName, "error", err)
	}

	e.logger.Info("retention policy executed",
		"table", p.TableName,
		"deleted_rows", deleted,
		"archived_rows", res.ArchivedRows,
	)
	return res
}
