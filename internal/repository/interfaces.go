package repository

import (
	"context"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// SessionRepository provides access to session_tracking.
type SessionRepository interface {
	// Insert persists a new session record.
	Insert(ctx context.Context, db DBTX, rec *domain.SessionRecord) error

	// FindActive returns the active session with the given id, or nil.
	FindActive(ctx context.Context, db DBTX, sessionID string) (*domain.SessionRecord, error)

	// TouchActivity updates last_activity for an active session.
	TouchActivity(ctx context.Context, db DBTX, sessionID string) error

	// Rotate deactivates the old session and inserts its successor in a
	// single statement so a cancelled request cannot leave half a rotation.
	Rotate(ctx context.Context, db DBTX, oldSessionID string, successor *domain.SessionRecord) error

	// Terminate marks a session inactive. Idempotent.
	Terminate(ctx context.Context, db DBTX, sessionID string) error

	// TerminateAllForUser marks every active session of the user inactive
	// and returns how many were affected.
	TerminateAllForUser(ctx context.Context, db DBTX, userID uuid.UUID) (int64, error)
}

// ThrottleRepository provides access to login_attempts and login_bans.
type ThrottleRepository interface {
	// InsertFailure appends a failed-attempt row for the identity.
	InsertFailure(ctx context.Context, db DBTX, att *domain.FailedAttempt) error

	// CountFailuresSince counts failures for the identity after the cutoff.
	CountFailuresSince(ctx context.Context, db DBTX, id domain.ClientIdentity, cutoff time.Time) (int, error)

	// ClearFailures deletes the identity's attempt window.
	ClearFailures(ctx context.Context, db DBTX, id domain.ClientIdentity) error

	// UpsertBan inserts a ban, or refreshes an expired one, as a single
	// conditional write. Returns false when an unexpired ban already exists
	// so concurrent threshold-crossings cannot double-ban.
	UpsertBan(ctx context.Context, db DBTX, ban *domain.BanRecord) (bool, error)

	// FindBan returns the identity's ban row, expired or not, or nil.
	FindBan(ctx context.Context, db DBTX, id domain.ClientIdentity) (*domain.BanRecord, error)

	// DeleteBan removes the identity's ban row (lazy expiry cleanup).
	DeleteBan(ctx context.Context, db DBTX, id domain.ClientIdentity) error
}

// CaptchaRepository provides access to captcha_challenges.
type CaptchaRepository interface {
	// Replace stores a challenge for the identity, displacing any previous one.
	Replace(ctx context.Context, db DBTX, ch *domain.CaptchaChallenge) error

	// Consume atomically removes and returns the identity's challenge, or
	// nil when none is stored. A challenge is consumed regardless of whether
	// the answer later matches.
	Consume(ctx context.Context, db DBTX, id domain.ClientIdentity) (*domain.CaptchaChallenge, error)
}

// IncidentRepository provides access to propagation_incidents and blocked_sessions.
type IncidentRepository interface {
	// InsertIncident persists a propagation incident.
	InsertIncident(ctx context.Context, db DBTX, inc *domain.PropagationIncident) error

	// BlockSession inserts a blocked-session row. Returns false when an
	// active block for the session already exists, which keeps detection at
	// exactly one incident + one block per event under concurrent requests.
	BlockSession(ctx context.Context, db DBTX, blk *domain.BlockedSession) (bool, error)

	// IsBlocked reports whether the session has an active, unexpired block.
	IsBlocked(ctx context.Context, db DBTX, sessionID string) (bool, error)

	// ListRecentIncidents returns incidents ordered newest first.
	ListRecentIncidents(ctx context.Context, db DBTX, limit int) ([]domain.PropagationIncident, error)

	// CountIncidentsSince counts incidents of a kind after the cutoff.
	CountIncidentsSince(ctx context.Context, db DBTX, kind domain.IncidentKind, cutoff time.Time) (int, error)
}

// PrivilegeRepository provides access to privilege_escalation_tracking.
type PrivilegeRepository interface {
	// InsertAttempt records a denied role check.
	InsertAttempt(ctx context.Context, db DBTX, att *domain.PrivilegeAttempt) error

	// CountAttemptsSince counts the user's denied checks after the cutoff.
	CountAttemptsSince(ctx context.Context, db DBTX, userID uuid.UUID, cutoff time.Time) (int, error)
}

// ClassificationRepository provides access to data_classification.
type ClassificationRepository interface {
	// Upsert inserts or updates a column classification.
	Upsert(ctx context.Context, db DBTX, c *domain.DataClassification) error

	// Find returns the classification of one column, or nil.
	Find(ctx context.Context, db DBTX, table, column string) (*domain.DataClassification, error)

	// ListByTable returns every classified column of the table.
	ListByTable(ctx context.Context, db DBTX, table string) ([]domain.DataClassification, error)
}

// ExportRepository provides access to export_approval_requests.
type ExportRepository interface {
	// Insert persists a new export request.
	Insert(ctx context.Context, db DBTX, req *domain.ExportRequest) error

	// FindByID returns an export request, or nil.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.ExportRequest, error)

	// Decide applies the pending→approved/rejected transition as a single
	// conditional update guarded by status and expiry. Returns the updated
	// row, or nil when the guard did not match (already processed/expired).
	Decide(ctx context.Context, db DBTX, id uuid.UUID, status domain.ExportStatus, approver domain.Role, notes string) (*domain.ExportRequest, error)

	// ListByRequester returns the requester's own requests, newest first.
	ListByRequester(ctx context.Context, db DBTX, requesterID uuid.UUID, limit int) ([]domain.ExportRequest, error)

	// ListAll returns all requests, newest first.
	ListAll(ctx context.Context, db DBTX, limit int) ([]domain.ExportRequest, error)
}

// DownloadRepository provides access to download_activity.
type DownloadRepository interface {
	// Insert logs one download.
	Insert(ctx context.Context, db DBTX, act *domain.DownloadActivity) error

	// CountByUserSince counts the user's downloads after the cutoff.
	CountByUserSince(ctx context.Context, db DBTX, userID uuid.UUID, cutoff time.Time) (int, error)

	// FlagSuspiciousSince marks the user's downloads after the cutoff as
	// suspicious and returns how many rows were flagged.
	FlagSuspiciousSince(ctx context.Context, db DBTX, userID uuid.UUID, cutoff time.Time) (int64, error)
}

// AuditRepository provides access to data_access_audit.
type AuditRepository interface {
	// Insert appends an audit event.
	Insert(ctx context.Context, db DBTX, evt *domain.AuditEvent) error

	// CountByActionSince returns per-action counts after the cutoff.
	CountByActionSince(ctx context.Context, db DBTX, cutoff time.Time) (map[string]int, error)
}

// RetentionRepository provides access to retention_policies and executes
// retention sweeps against the allow-listed target tables.
type RetentionRepository interface {
	// ListPolicies returns every retention policy.
	ListPolicies(ctx context.Context, db DBTX, autoDeleteOnly bool) ([]domain.RetentionPolicy, error)

	// FetchExpiredRows serializes rows older than the cutoff from an
	// allow-listed table as JSON documents, for archival.
	FetchExpiredRows(ctx context.Context, db DBTX, table string, cutoff time.Time) ([][]byte, error)

	// DeleteExpiredRows deletes rows older than the cutoff from an
	// allow-listed table and returns the deleted count.
	DeleteExpiredRows(ctx context.Context, db DBTX, table string, cutoff time.Time) (int64, error)

	// MarkExecuted updates the policy's last_executed timestamp.
	MarkExecuted(ctx context.Context, db DBTX, table string, at time.Time) error
}

// StaffRepository provides access to staff_accounts, the authoritative role
// store.
type StaffRepository interface {
	// FindByID returns the staff account, or nil.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.StaffAccount, error)
}

// ConfigRepository provides access to dlp_config.
type ConfigRepository interface {
	// LoadAll returns every persisted config key/value pair.
	LoadAll(ctx context.Context, db DBTX) (map[string]string, error)

	// Set upserts one config key.
	Set(ctx context.Context, db DBTX, key, value string) error
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the
	// state change it describes, when the caller runs one).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]OutboxRow, error)

	// MarkPublished removes published events.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// OutboxRow pairs an outbox draft with its sequence id for acknowledgement.
type OutboxRow struct {
	SeqID int64
	Draft domain.OutboxDraft
}
