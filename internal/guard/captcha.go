package guard

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
)

// captchaTTL is how long an issued challenge stays answerable.
const captchaTTL = 5 * time.Minute

// IssueCaptcha generates a small arithmetic challenge for the identity and
// stores the expected answer server-side, displacing any previous challenge.
func (t *LoginThrottle) IssueCaptcha(ctx context.Context, db repository.DBTX, signals domain.ClientSignals) (*domain.CaptchaChallenge, error) {
	id := DeriveIdentity(signals.IP, signals.UserAgent)
	question, answer := generateChallenge()

	now := time.Now()
	ch := &domain.CaptchaChallenge{
		Identity:  id,
		Question:  question,
		Answer:    answer,
		IssuedAt:  now,
		ExpiresAt: now.Add(captchaTTL),
	}
	if err := t.captchas.Replace(ctx, db, ch); err != nil {
		return nil, domain.ErrPersistence("store captcha challenge", err)
	}
	return ch, nil
}

// ValidateCaptcha checks the answer against the stored unexpired challenge.
// The challenge is consumed regardless of the outcome.
func (t *LoginThrottle) ValidateCaptcha(ctx context.Context, db repository.DBTX, signals domain.ClientSignals, answer int) (bool, error) {
	id := DeriveIdentity(signals.IP, signals.UserAgent)
	ch, err := t.captchas.Consume(ctx, db, id)
	if err != nil {
		return false, domain.ErrPersistence("consume captcha challenge", err)
	}
	if ch == nil {
		return false, nil
	}
	if time.Now().After(ch.ExpiresAt) {
		return false, nil
	}
	return ch.Answer == answer, nil
}

// generateChallenge produces a two-operand arithmetic question. Subtraction
// keeps the larger operand first so the answer is never negative.
func generateChallenge() (string, int) {
	a := rand.IntN(9) + 1
	b := rand.IntN(9) + 1

	switch rand.IntN(3) {
	case 0:
		return fmt.Sprintf("%d + %d", a, b), a + b
	case 1:
		if b > a {
			a, b = b, a
		}
		return fmt.Sprintf("%d - %d", a, b), a - b
	default:
		return fmt.Sprintf("%d × %d", a, b), a * b
	}
}
