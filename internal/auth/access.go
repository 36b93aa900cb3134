package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
	"github.com/caregrid/sentinel/internal/session"
)

// AccessConfig parametrizes escalation detection.
type AccessConfig struct {
	// MaxPrivilegeAttempts is the number of denied role checks within
	// AttemptWindow that cost the user their sessions.
	MaxPrivilegeAttempts int
	AttemptWindow        time.Duration
}

// DefaultAccessConfig returns the production thresholds.
func DefaultAccessConfig() AccessConfig {
	return AccessConfig{
		MaxPrivilegeAttempts: 3,
		AttemptWindow:        time.Hour,
	}
}

// Decision is the outcome of a role check. The caller owns the response
// (redirect, abort, error body); the controller only decides.
type Decision struct {
	Allowed bool `json:"allowed"`
	// SessionID is the id the caller should continue with; it changes when
	// validation rotated the session.
	SessionID string      `json:"session_id"`
	Rotated   bool        `json:"rotated"`
	Reason    string      `json:"reason,omitempty"`
	Role      domain.Role `json:"role,omitempty"`
}

func deny(sessionID, reason string) *Decision {
	return &Decision{Allowed: false, SessionID: sessionID, Reason: reason}
}

// AccessController performs rank-based role checks on top of session
// validation. The role on the session record is never trusted on its own:
// every check re-reads the staff account and treats any divergence as
// tampering.
type AccessController struct {
	monitor   *session.Monitor
	staff     repository.StaffRepository
	attempts  repository.PrivilegeRepository
	incidents repository.IncidentRepository
	outbox    repository.OutboxRepository
	cfg       AccessConfig
	metrics   session.IncidentRecorder
	logger    *slog.Logger
}

// NewAccessController creates an AccessController.
func NewAccessController(
	monitor *session.Monitor,
	staff repository.StaffRepository,
	attempts repository.PrivilegeRepository,
	incidents repository.IncidentRepository,
	outbox repository.OutboxRepository,
	cfg AccessConfig,
	logger *slog.Logger,
) *AccessController {
	return &AccessController{
		monitor:   monitor,
		staff:     staff,
		attempts:  attempts,
		incidents: incidents,
		outbox:    outbox,
		cfg:       cfg,
		logger:    logger.With("component", "access_controller"),
	}
}

// SetMetrics attaches an optional incident counter sink.
func (c *AccessController) SetMetrics(rec session.IncidentRecorder) {
	c.metrics = rec
}

// CheckAccess validates the session, cross-checks the session's role against
// the staff store, and compares ranks. Denials are recorded; repeated denials
// within the window block the session and invalidate all of the user's
// sessions, same as a hijack.
func (c *AccessController) CheckAccess(ctx context.Context, db repository.DBTX, sessionID string, signals domain.ClientSignals, required domain.Role) (*Decision, error) {
	res, err := c.monitor.Validate(ctx, db, sessionID, signals)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return deny(sessionID, res.Reason), nil
	}
	rec := res.Record

	acc, err := c.staff.FindByID(ctx, db, rec.UserID)
	if err != nil {
		return nil, domain.ErrPersistence("staff lookup", err)
	}
	if acc == nil || !acc.Active {
		c.recordDenial(ctx, db, rec, required, rec.Role)
		return deny(res.SessionID, "no active staff account"), nil
	}

	// A session carrying a role other than the authoritative one has been
	// tampered with; treated exactly like an escalation attempt.
	if acc.Role != rec.Role {
		c.logger.Warn("session role diverges from staff record",
			"user_id", rec.UserID,
			"session_role", string(rec.Role),
			"staff_role", string(acc.Role),
		)
		c.recordDenial(ctx, db, rec, required, acc.Role)
		return deny(res.SessionID, "role mismatch"), nil
	}

	if !acc.Role.AtLeast(required) {
		c.recordDenial(ctx, db, rec, required, acc.Role)
		return deny(res.SessionID, "insufficient role"), nil
	}

	return &Decision{
		Allowed:   true,
		SessionID: res.SessionID,
		Rotated:   res.Rotated,
		Role:      acc.Role,
	}, nil
}

// recordDenial persists the attempt, raises a privilege_escalation incident,
// and at the threshold applies the hijack-style teardown.
func (c *AccessController) recordDenial(ctx context.Context, db repository.DBTX, rec *domain.SessionRecord, required, current domain.Role) {
	now := time.Now()
	att := &domain.PrivilegeAttempt{
		UserID:        rec.UserID,
		SessionID:     rec.SessionID,
		AttemptedRole: required,
		CurrentRole:   current,
		AttemptedAt:   now,
	}

	count, err := c.attempts.CountAttemptsSince(ctx, db, rec.UserID, now.Add(-c.cfg.AttemptWindow))
	if err != nil {
		c.logger.Error("privilege attempt count failed", "user_id", rec.UserID, "error", err)
	}
	count++ // including this one

	severity := domain.SeverityHigh
	if count >= c.cfg.MaxPrivilegeAttempts {
		severity = domain.SeverityCritical
		att.Blocked = true
	}

	userID := rec.UserID
	inc := &domain.PropagationIncident{
		ID:                  uuid.New(),
		Kind:                domain.IncidentPrivilegeEscalation,
		UserID:              &userID,
		SessionID:           rec.SessionID,
		OriginalFingerprint: rec.Fingerprint,
		DetectedFingerprint: rec.Fingerprint,
		Severity:            severity,
		DetectedAt:          now,
	}
	err = repository.WithTx(ctx, db, func(db repository.DBTX) error {
		if err := c.attempts.InsertAttempt(ctx, db, att); err != nil {
			return err
		}
		if err := c.incidents.InsertIncident(ctx, db, inc); err != nil {
			return err
		}
		return c.outbox.Insert(ctx, db, domain.NewIncidentRaisedEvent(inc))
	})
	if err != nil {
		c.logger.Error("escalation record write failed", "user_id", rec.UserID, "error", err)
	} else if c.metrics != nil {
		c.metrics.RecordIncident(string(inc.Kind), string(inc.Severity))
	}

	c.logger.Warn("privilege escalation attempt",
		"user_id", rec.UserID,
		"session_id", rec.SessionID,
		"attempted_role", string(required),
		"current_role", string(current),
		"attempts_in_window", count,
		"severity", string(severity),
	)

	if att.Blocked {
		c.monitor.BlockAndTeardown(ctx, db, rec.SessionID, rec.UserID, string(domain.IncidentPrivilegeEscalation))
	}
}
