package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
	"github.com/google/uuid"
)

// MonitorConfig holds the session-integrity thresholds.
type MonitorConfig struct {
	// MaxSessionLifetime is the absolute age after which a session dies.
	MaxSessionLifetime time.Duration
	// RotationInterval is how often a session id is reissued.
	RotationInterval time.Duration
	// PropagationBlockDuration is how long a hijacked session id stays blocked.
	PropagationBlockDuration time.Duration
}

// DefaultMonitorConfig returns the production thresholds.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		MaxSessionLifetime:       8 * time.Hour,
		RotationInterval:         30 * time.Minute,
		PropagationBlockDuration: 24 * time.Hour,
	}
}

// ValidationResult is the outcome of a session-integrity check.
type ValidationResult struct {
	Valid bool `json:"valid"`
	// SessionID is the id the caller should continue with; it differs from
	// the checked id after a rotation.
	SessionID string `json:"session_id"`
	// Rotated is set when a new session id was issued during validation.
	Rotated bool   `json:"rotated"`
	Reason  string `json:"reason,omitempty"`
	// Record is the session state after validation, nil when invalid.
	Record *domain.SessionRecord `json:"-"`
}

func invalid(sessionID, reason string) *ValidationResult {
	return &ValidationResult{Valid: false, SessionID: sessionID, Reason: reason}
}

// IncidentRecorder receives counter updates when incidents are raised.
type IncidentRecorder interface {
	RecordIncident(kind, severity string)
}

// Monitor detects session hijacking through fingerprint comparison, enforces
// session lifetime, and rotates session ids against fixation.
type Monitor struct {
	sessions  repository.SessionRepository
	incidents repository.IncidentRepository
	audit     repository.AuditRepository
	outbox    repository.OutboxRepository
	fp        *Fingerprinter
	cfg       MonitorConfig
	metrics   IncidentRecorder
	logger    *slog.Logger
}

// NewMonitor creates a session-integrity monitor.
func NewMonitor(
	sessions repository.SessionRepository,
	incidents repository.IncidentRepository,
	audit repository.AuditRepository,
	outbox repository.OutboxRepository,
	fp *Fingerprinter,
	cfg MonitorConfig,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		sessions:  sessions,
		incidents: incidents,
		audit:     audit,
		outbox:    outbox,
		fp:        fp,
		cfg:       cfg,
		logger:    logger,
	}
}

// SetMetrics attaches an optional incident counter sink.
func (m *Monitor) SetMetrics(rec IncidentRecorder) {
	m.metrics = rec
}

// Initialize persists a new session record bound to the caller's fingerprint.
// A session id that is still on the block list is refused outright.
func (m *Monitor) Initialize(ctx context.Context, db repository.DBTX, sessionID string, userID uuid.UUID, role domain.Role, signals domain.ClientSignals) error {
	blocked, err := m.incidents.IsBlocked(ctx, db, sessionID)
	if err != nil {
		return domain.ErrPersistence("check blocked session", err)
	}
	if blocked {
		// The block already exists, so the conflict-guarded hijack path
		// would write nothing. Record the reuse attempt directly.
		m.auditSession(ctx, db, sessionID, "blocked_session_reuse", 80)
		m.logger.Warn("blocked session id presented at initialize",
			"session_id", sessionID,
			"user_id", userID,
		)
		m.teardown(ctx, db, sessionID, userID)
		return domain.ErrIntegrity("session id is blocked")
	}

	now := time.Now()
	rec := &domain.SessionRecord{
		SessionID:    sessionID,
		UserID:       userID,
		Role:         role,
		Fingerprint:  m.fp.Compute(userID, signals),
		IPAddress:    signals.IP,
		UserAgent:    signals.UserAgent,
		CreatedAt:    now,
		LastActivity: now,
		LastRotation: now,
		Active:       true,
	}
	if err := m.sessions.Insert(ctx, db, rec); err != nil {
		return domain.ErrPersistence("persist session", err)
	}
	return nil
}

// Validate runs the integrity checks for one privileged request:
// block list, fingerprint, lifetime, rotation, activity. Store failures fail
// closed: the result is invalid and the error carries the cause.
func (m *Monitor) Validate(ctx context.Context, db repository.DBTX, sessionID string, signals domain.ClientSignals) (*ValidationResult, error) {
	blocked, err := m.incidents.IsBlocked(ctx, db, sessionID)
	if err != nil {
		return invalid(sessionID, "store unavailable"), domain.ErrPersistence("check blocked session", err)
	}
	if blocked {
		m.auditSession(ctx, db, sessionID, "blocked_session_use", 80)
		_ = m.sessions.Terminate(ctx, db, sessionID)
		return invalid(sessionID, "session blocked"), nil
	}

	rec, err := m.sessions.FindActive(ctx, db, sessionID)
	if err != nil {
		return invalid(sessionID, "store unavailable"), domain.ErrPersistence("load session", err)
	}
	if rec == nil {
		return invalid(sessionID, "unknown or inactive session"), nil
	}

	current := m.fp.Compute(rec.UserID, signals)
	if current != rec.Fingerprint {
		m.handleHijack(ctx, db, rec, current)
		return invalid(sessionID, "fingerprint mismatch"), nil
	}

	now := time.Now()
	if now.Sub(rec.CreatedAt) > m.cfg.MaxSessionLifetime {
		m.auditSession(ctx, db, sessionID, "session_lifetime_exceeded", 20)
		_ = m.sessions.Terminate(ctx, db, sessionID)
		return invalid(sessionID, "session lifetime exceeded"), nil
	}

	if now.Sub(rec.LastRotation) > m.cfg.RotationInterval {
		successor := &domain.SessionRecord{
			SessionID:    uuid.New().String(),
			UserID:       rec.UserID,
			Role:         rec.Role,
			Fingerprint:  rec.Fingerprint,
			IPAddress:    signals.IP,
			UserAgent:    signals.UserAgent,
			CreatedAt:    rec.CreatedAt,
			LastActivity: now,
			LastRotation: now,
			Active:       true,
		}
		if err := m.sessions.Rotate(ctx, db, rec.SessionID, successor); err != nil {
			return invalid(sessionID, "store unavailable"), domain.ErrPersistence("rotate session", err)
		}
		m.logger.Info("session rotated",
			"old_session_id", rec.SessionID,
			"new_session_id", successor.SessionID,
			"user_id", rec.UserID,
		)
		return &ValidationResult{Valid: true, SessionID: successor.SessionID, Rotated: true, Record: successor}, nil
	}

	if err := m.sessions.TouchActivity(ctx, db, sessionID); err != nil {
		return invalid(sessionID, "store unavailable"), domain.ErrPersistence("touch session", err)
	}
	rec.LastActivity = now
	return &ValidationResult{Valid: true, SessionID: sessionID, Record: rec}, nil
}

// handleHijack blocks the session, raises exactly one incident, and tears
// down every session the user owns. Teardown is best-effort: local session
// state is cleared even when incident/audit writes fail.
func (m *Monitor) handleHijack(ctx context.Context, db repository.DBTX, rec *domain.SessionRecord, detectedFP string) {
	m.raiseHijackIncident(ctx, db, rec.SessionID, &rec.UserID, rec.Fingerprint, detectedFP, domain.SeverityCritical)
	m.teardown(ctx, db, rec.SessionID, rec.UserID)
}

// raiseHijackIncident writes the block, the incident, and the outbox event
// in one transaction. The conditional block insert decides the winner, and
// a failed incident write rolls the block back too, so detection always
// lands at exactly one incident + one block or nothing at all.
func (m *Monitor) raiseHijackIncident(ctx context.Context, db repository.DBTX, sessionID string, userID *uuid.UUID, originalFP, detectedFP string, severity domain.Severity) {
	now := time.Now()
	inc := &domain.PropagationIncident{
		ID:                  uuid.New(),
		Kind:                domain.IncidentSessionHijacking,
		UserID:              userID,
		SessionID:           sessionID,
		OriginalFingerprint: originalFP,
		DetectedFingerprint: detectedFP,
		Severity:            severity,
		DetectedAt:          now,
	}

	created := false
	err := repository.WithTx(ctx, db, func(db repository.DBTX) error {
		var err error
		created, err = m.incidents.BlockSession(ctx, db, &domain.BlockedSession{
			SessionID:   sessionID,
			Fingerprint: detectedFP,
			Reason:      string(domain.IncidentSessionHijacking),
			BlockedAt:   now,
			ExpiresAt:   now.Add(m.cfg.PropagationBlockDuration),
		})
		if err != nil || !created {
			return err
		}
		if err := m.incidents.InsertIncident(ctx, db, inc); err != nil {
			return err
		}
		return m.outbox.Insert(ctx, db, domain.NewIncidentRaisedEvent(inc))
	})
	if err != nil {
		m.logger.Error("hijack incident write failed", "session_id", sessionID, "error", err)
		return
	}
	if !created {
		return
	}
	if m.metrics != nil {
		m.metrics.RecordIncident(string(inc.Kind), string(inc.Severity))
	}

	m.logger.Warn("session hijacking detected",
		"session_id", sessionID,
		"severity", string(severity),
	)
}

// teardown terminates the current session and every other session of the
// user. The hijacker may hold any of them.
func (m *Monitor) teardown(ctx context.Context, db repository.DBTX, sessionID string, userID uuid.UUID) {
	if _, err := m.sessions.TerminateAllForUser(ctx, db, userID); err != nil {
		m.logger.Error("user session teardown failed", "user_id", userID, "error", err)
	}
	if err := m.sessions.Terminate(ctx, db, sessionID); err != nil {
		m.logger.Error("session termination failed", "session_id", sessionID, "error", err)
	}
}

// BlockAndTeardown applies the hijack-style teardown for an externally
// detected violation (repeated privilege probing).
func (m *Monitor) BlockAndTeardown(ctx context.Context, db repository.DBTX, sessionID string, userID uuid.UUID, reason string) {
	now := time.Now()
	if _, err := m.incidents.BlockSession(ctx, db, &domain.BlockedSession{
		SessionID: sessionID,
		Reason:    reason,
		BlockedAt: now,
		ExpiresAt: now.Add(m.cfg.PropagationBlockDuration),
	}); err != nil {
		m.logger.Error("session block write failed", "session_id", sessionID, "error", err)
	}
	m.teardown(ctx, db, sessionID, userID)
}

func (m *Monitor) auditSession(ctx context.Context, db repository.DBTX, sessionID, action string, risk int) {
	details, _ := json.Marshal(map[string]string{"session_id": sessionID})
	evt := &domain.AuditEvent{
		Actor:          "session-monitor",
		ActorRole:      domain.RoleGeneralUser,
		Action:         action,
		Resource:       "session_tracking",
		Classification: domain.LevelInternal,
		Details:        details,
		RiskScore:      risk,
		OccurredAt:     time.Now(),
	}
	if err := m.audit.Insert(ctx, db, evt); err != nil {
		m.logger.Error("session audit write failed", "session_id", sessionID, "error", err)
	}
}
