package domain

import "time"

// ClientIdentity is the opaque throttling key derived from caller IP and
// user agent. Derivation lives in the guard package; the rest of the system
// treats it as an opaque string.
type ClientIdentity string

// FailedAttempt is one recorded login failure for an identity.
type FailedAttempt struct {
	Identity  ClientIdentity `json:"identity"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	FailedAt  time.Time      `json:"failed_at"`
}

// BanRecord is a temporary hard block on authentication attempts for an
// identity. Expiry is lazy: the ban clears when now-StartedAt >= Duration.
type BanRecord struct {
	Identity  ClientIdentity `json:"identity"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Remaining returns how long the ban still holds at the given instant,
// or zero if it has expired.
func (b *BanRecord) Remaining(now time.Time) time.Duration {
	rem := b.Duration - now.Sub(b.StartedAt)
	if rem < 0 {
		return 0
	}
	return rem
}

// CaptchaChallenge is a single-use arithmetic challenge stored server-side.
type CaptchaChallenge struct {
	Identity  ClientIdentity `json:"identity"`
	Question  string         `json:"question"`
	Answer    int            `json:"-"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}
