package guard

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordFailure(t *testing.T, lt *LoginThrottle, ctx context.Context) bool {
	t.Helper()
	banned, err := lt.RecordFailure(ctx, nil, testSignals)
	require.NoError(t, err)
	return banned
}

// --- in-memory fakes ---

type fakeThrottleRepo struct {
	failures map[domain.ClientIdentity][]time.Time
	bans     map[domain.ClientIdentity]*domain.BanRecord
}

func newFakeThrottleRepo() *fakeThrottleRepo {
	return &fakeThrottleRepo{
		failures: make(map[domain.ClientIdentity][]time.Time),
		bans:     make(map[domain.ClientIdentity]*domain.BanRecord),
	}
}

func (f *fakeThrottleRepo) InsertFailure(_ context.Context, _ repository.DBTX, att *domain.FailedAttempt) error {
	f.failures[att.Identity] = append(f.failures[att.Identity], att.FailedAt)
	return nil
}

func (f *fakeThrottleRepo) CountFailuresSince(_ context.Context, _ repository.DBTX, id domain.ClientIdentity, cutoff time.Time) (int, error) {
	count := 0
	for _, ts := range f.failures[id] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (f *fakeThrottleRepo) ClearFailures(_ context.Context, _ repository.DBTX, id domain.ClientIdentity) error {
	delete(f.failures, id)
	return nil
}

func (f *fakeThrottleRepo) UpsertBan(_ context.Context, _ repository.DBTX, ban *domain.BanRecord) (bool, error) {
	if existing, ok := f.bans[ban.Identity]; ok && existing.Remaining(time.Now()) > 0 {
		return false, nil
	}
	f.bans[ban.Identity] = ban
	return true, nil
}

func (f *fakeThrottleRepo) FindBan(_ context.Context, _ repository.DBTX, id domain.ClientIdentity) (*domain.BanRecord, error) {
	return f.bans[id], nil
}

func (f *fakeThrottleRepo) DeleteBan(_ context.Context, _ repository.DBTX, id domain.ClientIdentity) error {
	delete(f.bans, id)
	return nil
}

type fakeCaptchaRepo struct {
	challenges map[domain.ClientIdentity]*domain.CaptchaChallenge
}

func newFakeCaptchaRepo() *fakeCaptchaRepo {
	return &fakeCaptchaRepo{challenges: make(map[domain.ClientIdentity]*domain.CaptchaChallenge)}
}

func (f *fakeCaptchaRepo) Replace(_ context.Context, _ repository.DBTX, ch *domain.CaptchaChallenge) error {
	f.challenges[ch.Identity] = ch
	return nil
}

func (f *fakeCaptchaRepo) Consume(_ context.Context, _ repository.DBTX, id domain.ClientIdentity) (*domain.CaptchaChallenge, error) {
	ch := f.challenges[id]
	delete(f.challenges, id)
	return ch, nil
}

type fakeOutbox struct {
	drafts []domain.OutboxDraft
}

func (f *fakeOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	f.drafts = append(f.drafts, draft)
	return nil
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, _ repository.DBTX, _ int) ([]repository.OutboxRow, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, _ repository.DBTX, _ []int64) error {
	return nil
}

func newTestThrottle(cfg ThrottleConfig) (*LoginThrottle, *fakeThrottleRepo, *fakeCaptchaRepo, *fakeOutbox) {
	attempts := newFakeThrottleRepo()
	captchas := newFakeCaptchaRepo()
	outbox := &fakeOutbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLoginThrottle(attempts, captchas, outbox, cfg, logger), attempts, captchas, outbox
}

var testSignals = domain.ClientSignals{IP: "203.0.113.7", UserAgent: "test-agent"}

// --- tests ---

func TestDeriveIdentity_Stable(t *testing.T) {
	a := DeriveIdentity("203.0.113.7", "agent")
	b := DeriveIdentity("203.0.113.7", "agent")
	c := DeriveIdentity("203.0.113.8", "agent")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, string(a), 16)
}

func TestThrottle_BanAfterMaxAttempts(t *testing.T) {
	cfg := DefaultThrottleConfig()
	lt, _, _, outbox := newTestThrottle(cfg)
	ctx := context.Background()

	for i := 0; i < cfg.MaxBanAttempts-1; i++ {
		assert.False(t, recordFailure(t, lt, ctx))
	}
	assert.True(t, recordFailure(t, lt, ctx), "threshold attempt issues the ban")

	banned, remaining, err := lt.IsBanned(ctx, nil, testSignals)
	require.NoError(t, err)
	assert.True(t, banned)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, cfg.BanDuration)

	// Ban event went to the outbox.
	require.Len(t, outbox.drafts, 1)
	assert.Equal(t, domain.EventIdentityBanned, outbox.drafts[0].EventType)
}

func TestThrottle_BanClearsAttemptWindow(t *testing.T) {
	cfg := DefaultThrottleConfig()
	lt, attempts, _, _ := newTestThrottle(cfg)
	ctx := context.Background()

	for i := 0; i < cfg.MaxBanAttempts; i++ {
		recordFailure(t, lt, ctx)
	}

	id := DeriveIdentity(testSignals.IP, testSignals.UserAgent)
	assert.Empty(t, attempts.failures[id])
}

func TestThrottle_BanExpiresLazily(t *testing.T) {
	cfg := DefaultThrottleConfig()
	lt, attempts, _, _ := newTestThrottle(cfg)
	ctx := context.Background()

	id := DeriveIdentity(testSignals.IP, testSignals.UserAgent)
	attempts.bans[id] = &domain.BanRecord{
		Identity:  id,
		StartedAt: time.Now().Add(-cfg.BanDuration - time.Minute),
		Duration:  cfg.BanDuration,
	}

	banned, remaining, err := lt.IsBanned(ctx, nil, testSignals)
	require.NoError(t, err)
	assert.False(t, banned)
	assert.Equal(t, time.Duration(0), remaining)
	assert.Nil(t, attempts.bans[id], "expired ban row should be cleaned up")
}

func TestThrottle_NeedsCaptchaBand(t *testing.T) {
	cfg := ThrottleConfig{
		MaxLoginAttempts: 3,
		MaxBanAttempts:   6,
		LockoutDuration:  15 * time.Minute,
		BanDuration:      30 * time.Minute,
	}
	lt, _, _, _ := newTestThrottle(cfg)
	ctx := context.Background()

	// Below the band.
	for i := 0; i < 2; i++ {
		recordFailure(t, lt, ctx)
	}
	need, err := lt.NeedsCaptcha(ctx, nil, testSignals)
	require.NoError(t, err)
	assert.False(t, need)

	// Entering the band [3, 6).
	recordFailure(t, lt, ctx)
	need, err = lt.NeedsCaptcha(ctx, nil, testSignals)
	require.NoError(t, err)
	assert.True(t, need)

	// At the ban threshold the window is cleared, so the band is exited.
	for i := 0; i < 3; i++ {
		recordFailure(t, lt, ctx)
	}
	need, err = lt.NeedsCaptcha(ctx, nil, testSignals)
	require.NoError(t, err)
	assert.False(t, need)
}

func TestThrottle_ClearOnSuccess(t *testing.T) {
	cfg := DefaultThrottleConfig()
	lt, attempts, _, _ := newTestThrottle(cfg)
	ctx := context.Background()

	recordFailure(t, lt, ctx)
	recordFailure(t, lt, ctx)
	require.NoError(t, lt.ClearOnSuccess(ctx, nil, testSignals))

	id := DeriveIdentity(testSignals.IP, testSignals.UserAgent)
	assert.Empty(t, attempts.failures[id])
}

func TestCaptcha_IssueAndValidate(t *testing.T) {
	cfg := DefaultThrottleConfig()
	lt, _, _, _ := newTestThrottle(cfg)
	ctx := context.Background()

	ch, err := lt.IssueCaptcha(ctx, nil, testSignals)
	require.NoError(t, err)
	assert.NotEmpty(t, ch.Question)
	assert.WithinDuration(t, time.Now().Add(captchaTTL), ch.ExpiresAt, time.Second)

	ok, err := lt.ValidateCaptcha(ctx, nil, testSignals, ch.Answer)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCaptcha_SingleUse(t *testing.T) {
	cfg := DefaultThrottleConfig()
	lt, _, _, _ := newTestThrottle(cfg)
	ctx := context.Background()

	ch, err := lt.IssueCaptcha(ctx, nil, testSignals)
	require.NoError(t, err)

	// A wrong answer still consumes the challenge.
	ok, err := lt.ValidateCaptcha(ctx, nil, testSignals, ch.Answer+1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = lt.ValidateCaptcha(ctx, nil, testSignals, ch.Answer)
	require.NoError(t, err)
	assert.False(t, ok, "consumed challenge must not validate")
}

func TestCaptcha_Expired(t *testing.T) {
	cfg := DefaultThrottleConfig()
	lt, _, captchas, _ := newTestThrottle(cfg)
	ctx := context.Background()

	id := DeriveIdentity(testSignals.IP, testSignals.UserAgent)
	captchas.challenges[id] = &domain.CaptchaChallenge{
		Identity:  id,
		Question:  "2 + 2",
		Answer:    4,
		IssuedAt:  time.Now().Add(-10 * time.Minute),
		ExpiresAt: time.Now().Add(-5 * time.Minute),
	}

	ok, err := lt.ValidateCaptcha(ctx, nil, testSignals, 4)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateChallenge_NonNegative(t *testing.T) {
	for i := 0; i < 200; i++ {
		question, answer := generateChallenge()
		assert.NotEmpty(t, question)
		assert.GreaterOrEqual(t, answer, 0)
	}
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "test-key")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	rl.Check(ctx, "test-key")
	rl.Check(ctx, "test-key")
	result := rl.Check(ctx, "test-key")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	ctx := context.Background()

	r1 := rl.Check(ctx, "key-a")
	r2 := rl.Check(ctx, "key-b")

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
}
