package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
)

// ThrottleConfig holds the login-throttle thresholds. Counts and windows are
// shared by every server instance because all state lives in the store.
type ThrottleConfig struct {
	// MaxLoginAttempts is the failure count at which CAPTCHA gating starts.
	MaxLoginAttempts int
	// MaxBanAttempts is the failure count at which the identity is banned.
	MaxBanAttempts int
	// LockoutDuration is the sliding window over which failures count.
	LockoutDuration time.Duration
	// BanDuration is how long a ban holds once triggered.
	BanDuration time.Duration
}

// DefaultThrottleConfig returns the production thresholds.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MaxLoginAttempts: 5,
		MaxBanAttempts:   10,
		LockoutDuration:  15 * time.Minute,
		BanDuration:      30 * time.Minute,
	}
}

// LoginThrottle tracks failed logins per client identity and applies the
// Clear → Warned → Banned state machine. All cross-request state is durable;
// counters are best-effort under races and only ever err toward blocking.
type LoginThrottle struct {
	attempts repository.ThrottleRepository
	captchas repository.CaptchaRepository
	outbox   repository.OutboxRepository
	cfg      ThrottleConfig
	logger   *slog.Logger
}

// NewLoginThrottle creates a LoginThrottle over the given repositories.
func NewLoginThrottle(attempts repository.ThrottleRepository, captchas repository.CaptchaRepository, outbox repository.OutboxRepository, cfg ThrottleConfig, logger *slog.Logger) *LoginThrottle {
	return &LoginThrottle{
		attempts: attempts,
		captchas: captchas,
		outbox:   outbox,
		cfg:      cfg,
		logger:   logger,
	}
}

// RecordFailure appends a failure to the identity's sliding window. Crossing
// the ban threshold stores a BanRecord and clears the window; the conditional
// ban upsert means concurrent crossings cannot double-ban. The returned flag
// reports whether this call issued a new ban.
func (t *LoginThrottle) RecordFailure(ctx context.Context, db repository.DBTX, signals domain.ClientSignals) (bool, error) {
	id := DeriveIdentity(signals.IP, signals.UserAgent)
	now := time.Now()

	att := &domain.FailedAttempt{
		Identity:  id,
		IPAddress: signals.IP,
		UserAgent: signals.UserAgent,
		FailedAt:  now,
	}
	if err := t.attempts.InsertFailure(ctx, db, att); err != nil {
		return false, domain.ErrPersistence("record login failure", err)
	}

	count, err := t.attempts.CountFailuresSince(ctx, db, id, now.Add(-t.cfg.LockoutDuration))
	if err != nil {
		return false, domain.ErrPersistence("count login failures", err)
	}
	if count < t.cfg.MaxBanAttempts {
		return false, nil
	}

	ban := &domain.BanRecord{Identity: id, StartedAt: now, Duration: t.cfg.BanDuration}
	created := false
	err = repository.WithTx(ctx, db, func(db repository.DBTX) error {
		var err error
		created, err = t.attempts.UpsertBan(ctx, db, ban)
		if err != nil || !created {
			return err
		}
		if err := t.attempts.ClearFailures(ctx, db, id); err != nil {
			return err
		}
		return t.outbox.Insert(ctx, db, domain.NewIdentityBannedEvent(ban, count))
	})
	if err != nil {
		return false, domain.ErrPersistence("store ban", err)
	}
	if !created {
		// Another request already banned this identity.
		return false, nil
	}

	t.logger.Warn("identity banned after repeated login failures",
		"identity", string(id),
		"attempts", count,
		"ban_duration", t.cfg.BanDuration,
	)
	return true, nil
}

// NeedsCaptcha reports whether the identity's failure count sits in the
// CAPTCHA band [MaxLoginAttempts, MaxBanAttempts).
func (t *LoginThrottle) NeedsCaptcha(ctx context.Context, db repository.DBTX, signals domain.ClientSignals) (bool, error) {
	id := DeriveIdentity(signals.IP, signals.UserAgent)
	count, err := t.attempts.CountFailuresSince(ctx, db, id, time.Now().Add(-t.cfg.LockoutDuration))
	if err != nil {
		// Fail closed: require the CAPTCHA when the store cannot answer.
		return true, domain.ErrPersistence("count login failures", err)
	}
	return count >= t.cfg.MaxLoginAttempts && count < t.cfg.MaxBanAttempts, nil
}

// IsBanned reports whether the identity is banned and how long remains.
// Expiry is lazy: an elapsed ban row is deleted on the next check.
func (t *LoginThrottle) IsBanned(ctx context.Context, db repository.DBTX, signals domain.ClientSignals) (bool, time.Duration, error) {
	id := DeriveIdentity(signals.IP, signals.UserAgent)
	ban, err := t.attempts.FindBan(ctx, db, id)
	if err != nil {
		return true, 0, domain.ErrPersistence("find ban", err)
	}
	if ban == nil {
		return false, 0, nil
	}

	remaining := ban.Remaining(time.Now())
	if remaining > 0 {
		return true, remaining, nil
	}

	if err := t.attempts.DeleteBan(ctx, db, id); err != nil {
		t.logger.Error("expired ban cleanup failed", "identity", string(id), "error", err)
	}
	return false, 0, nil
}

// ClearOnSuccess resets the identity's attempt window after a successful login.
func (t *LoginThrottle) ClearOnSuccess(ctx context.Context, db repository.DBTX, signals domain.ClientSignals) error {
	id := DeriveIdentity(signals.IP, signals.UserAgent)
	if err := t.attempts.ClearFailures(ctx, db, id); err != nil {
		return domain.ErrPersistence("clear attempt window", err)
	}
	return nil
}
