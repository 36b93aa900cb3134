package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PgStaffRepository implements StaffRepository using pgx.
type PgStaffRepository struct{}

// NewPgStaffRepository creates a new PgStaffRepository.
func NewPgStaffRepository() *PgStaffRepository {
	return &PgStaffRepository{}
}

// FindByID returns the authoritative staff record by user id, or nil if not found.
func (r *PgStaffRepository) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.StaffAccount, error) {
	row := db.QueryRow(ctx, `
		SELECT id, display_name, role, active, created_at
		FROM staff_accounts WHERE id = $1`, id)

	acc := &domain.StaffAccount{}
	var role string
	err := row.Scan(&acc.ID, &acc.DisplayName, &role, &acc.Active, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find staff account: %w", err)
	}
	acc.Role = domain.Role(role)
	return acc, nil
}
