package domain

import (
	"time"

	"github.com/google/uuid"
)

// FingerprintMode selects which client signals feed the session fingerprint.
type FingerprintMode string

const (
	// FingerprintStrict hashes IP, user agent, accept-language and
	// accept-encoding. Any change invalidates the session.
	FingerprintStrict FingerprintMode = "strict"
	// FingerprintModerate hashes user agent and accept-language only,
	// tolerating IP churn on mobile networks.
	FingerprintModerate FingerprintMode = "moderate"
	// FingerprintRelaxed binds the session to a per-user token independent
	// of browser signals, tolerating multiple devices.
	FingerprintRelaxed FingerprintMode = "relaxed"
)

// ClientSignals carries the per-request metadata the web layer supplies for
// fingerprinting and throttling.
type ClientSignals struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
}

// SessionRecord is the persisted server-side session state.
// The stored fingerprint is immutable for a given session id; a fingerprint
// change requires rotation into a new session id.
type SessionRecord struct {
	SessionID    string     `json:"session_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Role         Role       `json:"role"`
	Fingerprint  string     `json:"fingerprint"`
	IPAddress    string     `json:"ip_address"`
	UserAgent    string     `json:"user_agent"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	LastRotation time.Time  `json:"last_rotation"`
	Active       bool       `json:"active"`
	RotatedFrom  *string    `json:"rotated_from,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
}

// BlockedSession is a hard block on a session id, inserted when hijacking or
// repeated privilege probing is detected.
type BlockedSession struct {
	SessionID   string    `json:"session_id"`
	Fingerprint string    `json:"fingerprint"`
	Reason      string    `json:"reason"`
	BlockedAt   time.Time `json:"blocked_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Active      bool      `json:"active"`
}

// IncidentKind enumerates propagation incident categories.
type IncidentKind string

const (
	IncidentSessionHijacking    IncidentKind = "session_hijacking"
	IncidentPrivilegeEscalation IncidentKind = "privilege_escalation"
)

// Severity grades an incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// PropagationIncident records a detected hijacking or escalation event,
// distinct from routine audit entries.
type PropagationIncident struct {
	ID                  uuid.UUID    `json:"id"`
	Kind                IncidentKind `json:"kind"`
	UserID              *uuid.UUID   `json:"user_id,omitempty"`
	SessionID           string       `json:"session_id"`
	OriginalFingerprint string       `json:"original_fingerprint"`
	DetectedFingerprint string       `json:"detected_fingerprint"`
	Severity            Severity     `json:"severity"`
	DetectedAt          time.Time    `json:"detected_at"`
}

// PrivilegeAttempt records a denied role check.
type PrivilegeAttempt struct {
	ID            int64     `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	SessionID     string    `json:"session_id"`
	AttemptedRole Role      `json:"attempted_role"`
	CurrentRole   Role      `json:"current_role"`
	AttemptedAt   time.Time `json:"attempted_at"`
	Blocked       bool      `json:"blocked"`
}
