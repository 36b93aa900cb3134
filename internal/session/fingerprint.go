package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Fingerprinter derives the session fingerprint from client signals.
//
// With no key configured the fingerprint is an xxhash64 of the selected
// signals: fast, stable, good enough for equality comparison. When a key is
// configured the fingerprint is an HMAC-SHA256 instead, which also resists
// deliberate collision spoofing.
type Fingerprinter struct {
	mode domain.FingerprintMode
	key  []byte
}

// NewFingerprinter creates a Fingerprinter for the given mode. key may be nil.
func NewFingerprinter(mode domain.FingerprintMode, key []byte) *Fingerprinter {
	return &Fingerprinter{mode: mode, key: key}
}

// Mode returns the configured fingerprint mode.
func (f *Fingerprinter) Mode() domain.FingerprintMode {
	return f.mode
}

// Compute derives the fingerprint for a user from the request signals.
func (f *Fingerprinter) Compute(userID uuid.UUID, s domain.ClientSignals) string {
	var material string
	switch f.mode {
	case domain.FingerprintStrict:
		material = strings.Join([]string{s.IP, s.UserAgent, s.AcceptLanguage, s.AcceptEncoding}, "|")
	case domain.FingerprintModerate:
		// Tolerates IP churn on mobile networks.
		material = strings.Join([]string{s.UserAgent, s.AcceptLanguage}, "|")
	case domain.FingerprintRelaxed:
		// Per-user token independent of browser signals.
		material = "user:" + userID.String()
	default:
		material = strings.Join([]string{s.IP, s.UserAgent, s.AcceptLanguage, s.AcceptEncoding}, "|")
	}

	if len(f.key) > 0 {
		mac := hmac.New(sha256.New, f.key)
		mac.Write([]byte(material))
		return hex.EncodeToString(mac.Sum(nil))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(material))
}
