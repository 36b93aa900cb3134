package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/jackc/pgx/v5"
)

type captchaRepo struct{}

// NewCaptchaRepository returns a pgx-backed CaptchaRepository.
func NewCaptchaRepository() CaptchaRepository {
	return &captchaRepo{}
}

func (r *captchaRepo) Replace(ctx context.Context, db DBTX, ch *domain.CaptchaChallenge) error {
	_, err := db.Exec(ctx, `
		INSERT INTO captcha_challenges (identity, question, answer, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity) DO UPDATE
		SET question = EXCLUDED.question,
		    answer = EXCLUDED.answer,
		    issued_at = EXCLUDED.issued_at,
		    expires_at = EXCLUDED.expires_at`,
		string(ch.Identity), ch.Question, ch.Answer, ch.IssuedAt, ch.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store captcha challenge: %w", err)
	}
	return nil
}

// Consume removes the stored challenge in the same statement that reads it,
// so a challenge can never be answered twice.
func (r *captchaRepo) Consume(ctx context.Context, db DBTX, id domain.ClientIdentity) (*domain.CaptchaChallenge, error) {
	ch := &domain.CaptchaChallenge{Identity: id}
	err := db.QueryRow(ctx, `
		DELETE FROM captcha_challenges
		WHERE identity = $1
		RETURNING question, answer, issued_at, expires_at`,
		string(id)).Scan(&ch.Question, &ch.Answer, &ch.IssuedAt, &ch.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume captcha challenge: %w", err)
	}
	return ch, nil
}
