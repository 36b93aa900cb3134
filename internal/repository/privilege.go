package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/google/uuid"
)

type privilegeRepo struct{}

// NewPrivilegeRepository returns a pgx-backed PrivilegeRepository.
func NewPrivilegeRepository() PrivilegeRepository {
	return &privilegeRepo{}
}

func (r *privilegeRepo) InsertAttempt(ctx context.Context, db DBTX, att *domain.PrivilegeAttempt) error {
	_, err := db.Exec(ctx, `
		INSERT INTO privilege_escalation_tracking
		  (user_id, session_id, attempted_role, held_role, attempted_at, blocked)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		att.UserID, att.SessionID, string(att.AttemptedRole), string(att.CurrentRole),
		att.AttemptedAt, att.Blocked)
	if err != nil {
		return fmt.Errorf("insert privilege attempt: %w", err)
	}
	return nil
}

func (r *privilegeRepo) CountAttemptsSince(ctx context.Context, db DBTX, userID uuid.UUID, cutoff time.Time) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM privilege_escalation_tracking
		WHERE user_id = $1 AND attempted_at > $2`,
		userID, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count privilege attempts: %w", err)
	}
	return count, nil
}
