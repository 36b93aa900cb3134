package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PgExportRepository implements ExportRepository using pgx.
type PgExportRepository struct{}

// NewPgExportRepository creates a new PgExportRepository.
func NewPgExportRepository() *PgExportRepository {
	return &PgExportRepository{}
}

const exportColumns = `id, requester_id, requester_name, requester_role, export_type,
	 tables, filters, justification, classification, status, auto_approved,
	 approver_role, approval_notes, requested_at, decided_at, expires_at`

func (r *PgExportRepository) Insert(ctx context.Context, db DBTX, req *domain.ExportRequest) error {
	_, err := db.Exec(ctx, `
		INSERT INTO export_approval_requests
		  (id, requester_id, requester_name, requester_role, export_type, tables,
		   filters, justification, classification, status, auto_approved,
		   approver_role, approval_notes, requested_at, decided_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		req.ID, req.RequesterID, req.RequesterName, string(req.RequesterRole),
		req.ExportType, req.Tables, req.Filters, req.Justification,
		string(req.Classification), string(req.Status), req.AutoApproved,
		roleToText(req.ApproverRole), req.ApprovalNotes, req.RequestedAt,
		req.DecidedAt, req.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert export request: %w", err)
	}
	return nil
}

func (r *PgExportRepository) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.ExportRequest, error) {
	row := db.QueryRow(ctx, `
		SELECT `+exportColumns+`
		FROM export_approval_requests WHERE id = $1`, id)

	req, err := scanExport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find export request: %w", err)
	}
	return req, nil
}

// Decide is the only write path out of pending. The WHERE guard makes the
// transition atomic: a concurrent second call matches no row and gets nil.
func (r *PgExportRepository) Decide(ctx context.Context, db DBTX, id uuid.UUID, status domain.ExportStatus, approver domain.Role, notes string) (*domain.ExportRequest, error) {
	row := db.QueryRow(ctx, `
		UPDATE export_approval_requests
		SET status = $2, approver_role = $3, approval_notes = $4, decided_at = now()
		WHERE id = $1 AND status = 'pending' AND expires_at > now()
		RETURNING `+exportColumns, id, string(status), string(approver), notes)

	req, err := scanExport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decide export request: %w", err)
	}
	return req, nil
}

func (r *PgExportRepository) ListByRequester(ctx context.Context, db DBTX, requesterID uuid.UUID, limit int) ([]domain.ExportRequest, error) {
	rows, err := db.Query(ctx, `
		SELECT `+exportColumns+`
		FROM export_approval_requests
		WHERE requester_id = $1
		ORDER BY requested_at DESC
		LIMIT $2`, requesterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list export requests: %w", err)
	}
	return collectExports(rows)
}

func (r *PgExportRepository) ListAll(ctx context.Context, db DBTX, limit int) ([]domain.ExportRequest, error) {
	rows, err := db.Query(ctx, `
		SELECT `+exportColumns+`
		FROM export_approval_requests
		ORDER BY requested_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list export requests: %w", err)
	}
	return collectExports(rows)
}

func collectExports(rows pgx.Rows) ([]domain.ExportRequest, error) {
	defer rows.Close()
	var out []domain.ExportRequest
	for rows.Next() {
		req, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export request: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func scanExport(row pgx.Row) (*domain.ExportRequest, error) {
	req := &domain.ExportRequest{}
	var reqRole, classification, status string
	var approverRole *string
	err := row.Scan(&req.ID, &req.RequesterID, &req.RequesterName, &reqRole,
		&req.ExportType, &req.Tables, &req.Filters, &req.Justification,
		&classification, &status, &req.AutoApproved, &approverRole,
		&req.ApprovalNotes, &req.RequestedAt, &req.DecidedAt, &req.ExpiresAt)
	if err != nil {
		return nil, err
	}
	req.RequesterRole = domain.Role(reqRole)
	req.Classification = domain.Level(classification)
	req.Status = domain.ExportStatus(status)
	if approverRole != nil {
		role := domain.Role(*approverRole)
		req.ApproverRole = &role
	}
	return req, nil
}

func roleToText(r *domain.Role) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}
