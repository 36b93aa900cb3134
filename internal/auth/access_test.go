package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
	"github.com/caregrid/sentinel/internal/session"
)

// --- in-memory fakes ---

type memSessionRepo struct {
	records map[string]*domain.SessionRecord
}

func (f *memSessionRepo) Insert(_ context.Context, _ repository.DBTX, rec *domain.SessionRecord) error {
	cp := *rec
	f.records[rec.SessionID] = &cp
	return nil
}

func (f *memSessionRepo) FindActive(_ context.Context, _ repository.DBTX, sessionID string) (*domain.SessionRecord, error) {
	rec, ok := f.records[sessionID]
	if !ok || !rec.Active {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *memSessionRepo) TouchActivity(_ context.Context, _ repository.DBTX, sessionID string) error {
	if rec, ok := f.records[sessionID]; ok {
		rec.LastActivity = time.Now()
	}
	return nil
}

func (f *memSessionRepo) Rotate(_ context.Context, _ repository.DBTX, oldSessionID string, successor *domain.SessionRecord) error {
	old := f.records[oldSessionID]
	old.Active = false
	cp := *successor
	from := oldSessionID
	cp.RotatedFrom = &from
	f.records[cp.SessionID] = &cp
	return nil
}

func (f *memSessionRepo) Terminate(_ context.Context, _ repository.DBTX, sessionID string) error {
	if rec, ok := f.records[sessionID]; ok {
		rec.Active = false
	}
	return nil
}

func (f *memSessionRepo) TerminateAllForUser(_ context.Context, _ repository.DBTX, userID uuid.UUID) (int64, error) {
	var n int64
	for _, rec := range f.records {
		if rec.UserID == userID && rec.Active {
			rec.Active = false
			n++
		}
	}
	return n, nil
}

type memIncidentRepo struct {
	incidents []domain.PropagationIncident
	blocks    map[string]*domain.BlockedSession
}

func (f *memIncidentRepo) InsertIncident(_ context.Context, _ repository.DBTX, inc *domain.PropagationIncident) error {
	f.incidents = append(f.incidents, *inc)
	return nil
}

func (f *memIncidentRepo) BlockSession(_ context.Context, _ repository.DBTX, blk *domain.BlockedSession) (bool, error) {
	if existing, ok := f.blocks[blk.SessionID]; ok && existing.Active {
		return false, nil
	}
	cp := *blk
	cp.Active = true
	f.blocks[blk.SessionID] = &cp
	return true, nil
}

func (f *memIncidentRepo) IsBlocked(_ context.Context, _ repository.DBTX, sessionID string) (bool, error) {
	blk, ok := f.blocks[sessionID]
	return ok && blk.Active && blk.ExpiresAt.After(time.Now()), nil
}

func (f *memIncidentRepo) ListRecentIncidents(_ context.Context, _ repository.DBTX, limit int) ([]domain.PropagationIncident, error) {
	return f.incidents, nil
}

func (f *memIncidentRepo) CountIncidentsSince(_ context.Context, _ repository.DBTX, kind domain.IncidentKind, cutoff time.Time) (int, error) {
	count := 0
	for _, inc := range f.incidents {
		if inc.Kind == kind && inc.DetectedAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}

type memAuditRepo struct {
	events []domain.AuditEvent
}

func (f *memAuditRepo) Insert(_ context.Context, _ repository.DBTX, evt *domain.AuditEvent) error {
	f.events = append(f.events, *evt)
	return nil
}

func (f *memAuditRepo) CountByActionSince(_ context.Context, _ repository.DBTX, _ time.Time) (map[string]int, error) {
	return nil, nil
}

type memOutbox struct {
	drafts []domain.OutboxDraft
}

func (f *memOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	f.drafts = append(f.drafts, draft)
	return nil
}

func (f *memOutbox) FetchUnpublished(_ context.Context, _ repository.DBTX, _ int) ([]repository.OutboxRow, error) {
	return nil, nil
}

func (f *memOutbox) MarkPublished(_ context.Context, _ repository.DBTX, _ []int64) error {
	return nil
}

type memPrivRepo struct {
	attempts []domain.PrivilegeAttempt
}

func (f *memPrivRepo) InsertAttempt(_ context.Context, _ repository.DBTX, att *domain.PrivilegeAttempt) error {
	f.attempts = append(f.attempts, *att)
	return nil
}

func (f *memPrivRepo) CountAttemptsSince(_ context.Context, _ repository.DBTX, userID uuid.UUID, cutoff time.Time) (int, error) {
	count := 0
	for _, att := range f.attempts {
		if att.UserID == userID && att.AttemptedAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}

type memStaffRepo struct {
	accounts map[uuid.UUID]*domain.StaffAccount
}

func (f *memStaffRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.StaffAccount, error) {
	acc, ok := f.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

type accessEnv struct {
	ac        *AccessController
	monitor   *session.Monitor
	sessions  *memSessionRepo
	incidents *memIncidentRepo
	attempts  *memPrivRepo
	staff     *memStaffRepo
	outbox    *memOutbox
}

func newAccessEnv() *accessEnv {
	env := &accessEnv{
		sessions:  &memSessionRepo{records: make(map[string]*domain.SessionRecord)},
		incidents: &memIncidentRepo{blocks: make(map[string]*domain.BlockedSession)},
		attempts:  &memPrivRepo{},
		staff:     &memStaffRepo{accounts: make(map[uuid.UUID]*domain.StaffAccount)},
		outbox:    &memOutbox{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.monitor = session.NewMonitor(env.sessions, env.incidents, &memAuditRepo{}, env.outbox,
		session.NewFingerprinter(domain.FingerprintStrict, nil), session.DefaultMonitorConfig(), logger)
	env.ac = NewAccessController(env.monitor, env.staff, env.attempts, env.incidents, env.outbox,
		DefaultAccessConfig(), logger)
	return env
}

func (env *accessEnv) addStaffSession(t *testing.T, role domain.Role, signals domain.ClientSignals) (uuid.UUID, string) {
	t.Helper()
	userID := uuid.New()
	sessionID := uuid.New().String()
	env.staff.accounts[userID] = &domain.StaffAccount{
		ID: userID, DisplayName: "Test Staff", Role: role, Active: true, CreatedAt: time.Now(),
	}
	require.NoError(t, env.monitor.Initialize(context.Background(), nil, sessionID, userID, role, signals))
	return userID, sessionID
}

var testSignals = domain.ClientSignals{
	IP:             "198.51.100.10",
	UserAgent:      "Mozilla/5.0",
	AcceptLanguage: "en-US",
	AcceptEncoding: "gzip",
}

// --- tests ---

func TestCheckAccess_SufficientRank(t *testing.T) {
	env := newAccessEnv()
	_, sessionID := env.addStaffSession(t, domain.RoleDoctor, testSignals)

	dec, err := env.ac.CheckAccess(context.Background(), nil, sessionID, testSignals, domain.RoleNurse)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, domain.RoleDoctor, dec.Role)
	assert.Empty(t, env.attempts.attempts)
}

func TestCheckAccess_EqualRankAllowed(t *testing.T) {
	env := newAccessEnv()
	_, sessionID := env.addStaffSession(t, domain.RoleNurse, testSignals)

	dec, err := env.ac.CheckAccess(context.Background(), nil, sessionID, testSignals, domain.RoleNurse)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestCheckAccess_InsufficientRankRecordsAttempt(t *testing.T) {
	env := newAccessEnv()
	userID, sessionID := env.addStaffSession(t, domain.RoleNurse, testSignals)

	dec, err := env.ac.CheckAccess(context.Background(), nil, sessionID, testSignals, domain.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)

	require.Len(t, env.attempts.attempts, 1)
	att := env.attempts.attempts[0]
	assert.Equal(t, userID, att.UserID)
	assert.Equal(t, domain.RoleAdmin, att.AttemptedRole)
	assert.Equal(t, domain.RoleNurse, att.CurrentRole)
	assert.False(t, att.Blocked)

	// One escalation incident at high severity, session still alive.
	require.Len(t, env.incidents.incidents, 1)
	assert.Equal(t, domain.IncidentPrivilegeEscalation, env.incidents.incidents[0].Kind)
	assert.Equal(t, domain.SeverityHigh, env.incidents.incidents[0].Severity)
	assert.True(t, env.sessions.records[sessionID].Active)
}

func TestCheckAccess_RepeatedDenialsBlockUser(t *testing.T) {
	env := newAccessEnv()
	userID, sessionID := env.addStaffSession(t, domain.RoleNurse, testSignals)

	// Second session for the same user; dies with the first at the threshold.
	otherSession := uuid.New().String()
	require.NoError(t, env.monitor.Initialize(context.Background(), nil, otherSession, userID, domain.RoleNurse, testSignals))

	max := DefaultAccessConfig().MaxPrivilegeAttempts
	for i := 0; i < max; i++ {
		dec, err := env.ac.CheckAccess(context.Background(), nil, sessionID, testSignals, domain.RoleAdmin)
		require.NoError(t, err)
		assert.False(t, dec.Allowed)
	}

	last := env.attempts.attempts[len(env.attempts.attempts)-1]
	assert.True(t, last.Blocked)
	assert.Equal(t, domain.SeverityCritical, env.incidents.incidents[len(env.incidents.incidents)-1].Severity)

	assert.False(t, env.sessions.records[sessionID].Active)
	assert.False(t, env.sessions.records[otherSession].Active)
	require.NotNil(t, env.incidents.blocks[sessionID])

	// Subsequent checks on the blocked session stay denied.
	dec, err := env.ac.CheckAccess(context.Background(), nil, sessionID, testSignals, domain.RoleNurse)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
}

func TestCheckAccess_RoleMismatchIsEscalation(t *testing.T) {
	env := newAccessEnv()
	userID, sessionID := env.addStaffSession(t, domain.RoleNurse, testSignals)

	// Authoritative role changed after session creation; the stale (higher)
	// role on the session must not win.
	env.staff.accounts[userID].Role = domain.RoleReceptionist

	dec, err := env.ac.CheckAccess(context.Background(), nil, sessionID, testSignals, domain.RoleReceptionist)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "role mismatch", dec.Reason)

	require.Len(t, env.attempts.attempts, 1)
	assert.Equal(t, domain.RoleReceptionist, env.attempts.attempts[0].CurrentRole)
}

func TestCheckAccess_InactiveStaffDenied(t *testing.T) {
	env := newAccessEnv()
	userID, sessionID := env.addStaffSession(t, domain.RoleDoctor, testSignals)
	env.staff.accounts[userID].Active = false

	dec, err := env.ac.CheckAccess(context.Background(), nil, sessionID, testSignals, domain.RoleNurse)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
}

func TestCheckAccess_InvalidSessionDenied(t *testing.T) {
	env := newAccessEnv()

	dec, err := env.ac.CheckAccess(context.Background(), nil, uuid.New().String(), testSignals, domain.RoleNurse)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Empty(t, env.attempts.attempts)
}

func TestCheckAccess_AdminPassesEverything(t *testing.T) {
	env := newAccessEnv()
	_, sessionID := env.addStaffSession(t, domain.RoleAdmin, testSignals)

	for _, required := range domain.AllRoles() {
		dec, err := env.ac.CheckAccess(context.Background(), nil, sessionID, testSignals, required)
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "admin should satisfy %s", required)
	}
}
