package guard

import (
	"fmt"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/cespare/xxhash/v2"
)

// DeriveIdentity builds the opaque throttling key from caller IP and user
// agent. The key is a hash, not load-bearing cryptography: it only needs to
// be stable per client and cheap to compute.
func DeriveIdentity(ip, userAgent string) domain.ClientIdentity {
	h := xxhash.New()
	_, _ = h.WriteString(ip)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(userAgent)
	return domain.ClientIdentity(fmt.Sprintf("%016x", h.Sum64()))
}
