package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/jackc/pgx/v5"
)

// PgThrottleRepository implements ThrottleRepository using pgx.
type PgThrottleRepository struct{}

// NewPgThrottleRepository creates a new PgThrottleRepository.
func NewPgThrottleRepository() *PgThrottleRepository {
	return &PgThrottleRepository{}
}

func (r *PgThrottleRepository) InsertFailure(ctx context.Context, db DBTX, att *domain.FailedAttempt) error {
	_, err := db.Exec(ctx, `
		INSERT INTO login_attempts (identity, ip_address, user_agent, failed_at)
		VALUES ($1, $2, $3, $4)`,
		string(att.Identity), att.IPAddress, att.UserAgent, att.FailedAt)
	if err != nil {
		return fmt.Errorf("insert login failure: %w", err)
	}
	return nil
}

func (r *PgThrottleRepository) CountFailuresSince(ctx context.Context, db DBTX, id domain.ClientIdentity, cutoff time.Time) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE identity = $1 AND failed_at > $2`,
		string(id), cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count login failures: %w", err)
	}
	return count, nil
}

func (r *PgThrottleRepository) ClearFailures(ctx context.Context, db DBTX, id domain.ClientIdentity) error {
	_, err := db.Exec(ctx, `DELETE FROM login_attempts WHERE identity = $1`, string(id))
	if err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}
	return nil
}

// UpsertBan inserts the ban, or refreshes one whose window has already
// elapsed. An unexpired ban wins the race: the guarded DO UPDATE matches no
// row and RowsAffected stays zero.
func (r *PgThrottleRepository) UpsertBan(ctx context.Context, db DBTX, ban *domain.BanRecord) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO login_bans (identity, started_at, duration_seconds)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE
		SET started_at = EXCLUDED.started_at,
		    duration_seconds = EXCLUDED.duration_seconds
		WHERE login_bans.started_at + make_interval(secs => login_bans.duration_seconds) <= now()`,
		string(ban.Identity), ban.StartedAt, int64(ban.Duration.Seconds()))
	if err != nil {
		return false, fmt.Errorf("upsert ban: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgThrottleRepository) FindBan(ctx context.Context, db DBTX, id domain.ClientIdentity) (*domain.BanRecord, error) {
	var (
		startedAt time.Time
		seconds   int64
	)
	err := db.QueryRow(ctx, `
		SELECT started_at, duration_seconds FROM login_bans WHERE identity = $1`,
		string(id)).Scan(&startedAt, &seconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ban: %w", err)
	}
	return &domain.BanRecord{
		Identity:  id,
		StartedAt: startedAt,
		Duration:  time.Duration(seconds) * time.Second,
	}, nil
}

func (r *PgThrottleRepository) DeleteBan(ctx context.Context, db DBTX, id domain.ClientIdentity) error {
	_, err := db.Exec(ctx, `DELETE FROM login_bans WHERE identity = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	return nil
}
