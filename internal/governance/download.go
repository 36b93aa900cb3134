package governance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
)

// DownloadInput describes one download to be logged.
type DownloadInput struct {
	FileName       string
	FileType       string
	RecordCount    int
	Classification domain.Level
	IPAddress      string
	Watermarked    bool
}

// LogDownloadActivity records a download, then runs the suspicious-pattern
// rule: at or above the per-hour threshold, the user's trailing-hour rows are
// flagged and a high-risk audit event is raised. The flagging is best-effort;
// the download row itself is the security-relevant write.
func (e *Engine) LogDownloadActivity(ctx context.Context, db repository.DBTX, requester Requester, in DownloadInput) (*domain.DownloadActivity, error) {
	if in.FileName == "" {
		return nil, domain.ErrValidation("file name is required")
	}

	now := time.Now()
	act := &domain.DownloadActivity{
		UserID:         requester.ID,
		UserName:       requester.Name,
		UserRole:       requester.Role,
		FileName:       in.FileName,
		FileType:       in.FileType,
		RecordCount:    in.RecordCount,
		Classification: in.Classification,
		IPAddress:      in.IPAddress,
		Watermarked:    in.Watermarked,
		DownloadedAt:   now,
	}
	if err := e.downloads.Insert(ctx, db, act); err != nil {
		return nil, domain.ErrPersistence("download insert", err)
	}

	cutoff := now.Add(-time.Hour)
	count, err := e.downloads.CountByUserSince(ctx, db, requester.ID, cutoff)
	if err != nil {
		e.logger.Error("download count failed", "user_id", requester.ID, "error", err)
		return act, nil
	}
	if count < e.cfg.DownloadThresholdPerHour {
		return act, nil
	}

	flagged, err := e.downloads.FlagSuspiciousSince(ctx, db, requester.ID, cutoff)
	if err != nil {
		e.logger.Error("suspicious flagging failed", "user_id", requester.ID, "error", err)
	} else {
		act.Suspicious = true
	}

	details, _ := json.Marshal(map[string]interface{}{
		"downloads_last_hour": count,
		"threshold":           e.cfg.DownloadThresholdPerHour,
		"rows_flagged":        flagged,
	})
	e.auditEvent(ctx, db, &domain.AuditEvent{
		Actor:          requester.Name,
		ActorRole:      requester.Role,
		Action:         "suspicious_download_pattern",
		Resource:       "download_activity",
		Classification: in.Classification,
		Details:        details,
		RiskScore:      90,
	})

	e.logger.Warn("suspicious download pattern",
		"user_id", requester.ID,
		"downloads_last_hour", count,
	)
	return act, nil
}

// LogDataAccess appends a general data-access audit entry.
func (e *Engine) LogDataAccess(ctx context.Context, db repository.DBTX, requester Requester, action, resource string, level domain.Level, details json.RawMessage) error {
	if action == "" {
		return domain.ErrValidation("action is required")
	}
	if resource == "" {
		return domain.ErrValidation("resource is required")
	}
	if !level.Valid() {
		level = domain.LevelInternal
	}

	evt := &domain.AuditEvent{
		Actor:          requester.Name,
		ActorRole:      requester.Role,
		Action:         action,
		Resource:       resource,
		Classification: level,
		Details:        details,
		RiskScore:      riskForLevel(level),
		OccurredAt:     time.Now(),
	}
	if err := e.audit.Insert(ctx, db, evt); err != nil {
		return domain.ErrPersistence("audit insert", err)
	}
	return nil
}
