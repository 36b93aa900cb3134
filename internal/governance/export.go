package governance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
)

// Requester identifies the authenticated caller of an export operation.
type Requester struct {
	ID   uuid.UUID
	Name string
	Role domain.Role
}

// ExportInput is the payload of a new export request.
type ExportInput struct {
	ExportType    string
	Tables        []string
	Filters       json.RawMessage
	Justification string
}

// ExportCheck is the outcome of a CanExport call.
type ExportCheck struct {
	Allowed          bool         `json:"allowed"`
	Classification   domain.Level `json:"classification"`
	RequiresApproval bool         `json:"requires_approval"`
	Reason           string       `json:"reason,omitempty"`
}

// autoApproved is the auto-approval matrix. This function is the only place
// the matrix exists; every caller goes through it.
func autoApproved(level domain.Level, role domain.Role) bool {
	switch level {
	case domain.LevelPublic:
		return true
	case domain.LevelInternal:
		return role.IsStaff()
	case domain.LevelConfidential:
		return role == domain.RoleAdmin || role == domain.RoleChiefStaff
	case domain.LevelRestricted:
		return role == domain.RoleAdmin
	default:
		return false
	}
}

// tableAllowed reports whether the role may export the table.
func (e *Engine) tableAllowed(role domain.Role, table string) bool {
	for _, t := range e.cfg.AllowedTables[role] {
		if t == AllTablesWildcard || t == table {
			return true
		}
	}
	return false
}

// RequestExport validates and persists a new export request, applying the
// auto-approval matrix. Requests that are not auto-approved stay pending
// until an approver decides or the approval window expires.
func (e *Engine) RequestExport(ctx context.Context, db repository.DBTX, requester Requester, in ExportInput) (*domain.ExportRequest, error) {
	if err := domain.ValidateExportTables(in.Tables); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateJustification(in.Justification); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	for _, table := range in.Tables {
		if !e.tableAllowed(requester.Role, table) {
			return nil, domain.ErrForbidden("role may not export table " + table)
		}
	}

	level := domain.LevelPublic
	for _, table := range in.Tables {
		tl, err := e.HighestClassification(ctx, db, table)
		if err != nil {
			return nil, err
		}
		level = domain.MaxLevel(level, tl)
	}

	now := time.Now()
	req := &domain.ExportRequest{
		ID:             uuid.New(),
		RequesterID:    requester.ID,
		RequesterName:  requester.Name,
		RequesterRole:  requester.Role,
		ExportType:     in.ExportType,
		Tables:         in.Tables,
		Filters:        in.Filters,
		Justification:  in.Justification,
		Classification: level,
		Status:         domain.ExportPending,
		RequestedAt:    now,
		ExpiresAt:      now.Add(e.cfg.ApprovalExpiry),
	}

	action := "export_submitted"
	eventType := domain.EventExportSubmitted
	if autoApproved(level, requester.Role) {
		req.Status = domain.ExportApproved
		req.AutoApproved = true
		req.DecidedAt = &now
		action = "export_auto_approved"
		eventType = domain.EventExportApproved
	}

	details, _ := json.Marshal(map[string]interface{}{
		"request_id": req.ID,
		"tables":     req.Tables,
		"status":     req.Status,
	})
	err := repository.WithTx(ctx, db, func(db repository.DBTX) error {
		if err := e.exports.Insert(ctx, db, req); err != nil {
			return err
		}
		e.auditEvent(ctx, db, &domain.AuditEvent{
			Actor:          requester.Name,
			ActorRole:      requester.Role,
			Action:         action,
			Resource:       "export_approval_requests",
			Classification: level,
			Details:        details,
			RiskScore:      riskForLevel(level),
		})
		return e.outbox.Insert(ctx, db, domain.NewExportDecisionEvent(req, eventType))
	})
	if err != nil {
		return nil, domain.ErrPersistence("export request insert", err)
	}

	e.logger.Info("export requested",
		"request_id", req.ID,
		"requester_id", requester.ID,
		"classification", string(level),
		"status", string(req.Status),
	)
	return req, nil
}

// Approve moves a pending request to approved. The transition is one
// conditional update; a concurrent duplicate call observes no matched row and
// fails as already processed.
func (e *Engine) Approve(ctx context.Context, db repository.DBTX, id uuid.UUID, approver Requester, notes string) (*domain.ExportRequest, error) {
	return e.decide(ctx, db, id, approver, notes, domain.ExportApproved)
}

// Reject moves a pending request to rejected under the same guard as Approve.
func (e *Engine) Reject(ctx context.Context, db repository.DBTX, id uuid.UUID, approver Requester, notes string) (*domain.ExportRequest, error) {
	return e.decide(ctx, db, id, approver, notes, domain.ExportRejected)
}

func (e *Engine) decide(ctx context.Context, db repository.DBTX, id uuid.UUID, approver Requester, notes string, status domain.ExportStatus) (*domain.ExportRequest, error) {
	if approver.Role != domain.RoleAdmin && approver.Role != domain.RoleChiefStaff {
		return nil, domain.ErrForbidden("only admin or chief staff may decide export requests")
	}

	eventType := domain.EventExportApproved
	action := "export_approved"
	if status == domain.ExportRejected {
		eventType = domain.EventExportRejected
		action = "export_rejected"
	}
	details, _ := json.Marshal(map[string]interface{}{"request_id": id, "notes": notes})

	var req *domain.ExportRequest
	err := repository.WithTx(ctx, db, func(db repository.DBTX) error {
		var err error
		req, err = e.exports.Decide(ctx, db, id, status, approver.Role, notes)
		if err != nil || req == nil {
			return err
		}
		e.auditEvent(ctx, db, &domain.AuditEvent{
			Actor:          approver.Name,
			ActorRole:      approver.Role,
			Action:         action,
			Resource:       "export_approval_requests",
			Classification: req.Classification,
			Details:        details,
			RiskScore:      riskForLevel(req.Classification),
		})
		return e.outbox.Insert(ctx, db, domain.NewExportDecisionEvent(req, eventType))
	})
	if err != nil {
		return nil, domain.ErrPersistence("export decision", err)
	}
	if req == nil {
		existing, err := e.exports.FindByID(ctx, db, id)
		if err != nil {
			return nil, domain.ErrPersistence("export lookup", err)
		}
		if existing == nil {
			return nil, domain.ErrNotFound("export request", id.String())
		}
		if existing.Status == domain.ExportPending {
			return nil, domain.ErrConflict("export request approval window expired")
		}
		return nil, domain.ErrConflict("export request already processed")
	}

	e.logger.Info("export request decided",
		"request_id", id,
		"status", string(status),
		"approver_role", string(approver.Role),
	)
	return req, nil
}

// CheckApproval returns the request iff it is approved and unexpired.
func (e *Engine) CheckApproval(ctx context.Context, db repository.DBTX, id uuid.UUID) (*domain.ExportRequest, error) {
	req, err := e.exports.FindByID(ctx, db, id)
	if err != nil {
		return nil, domain.ErrPersistence("export lookup", err)
	}
	if req == nil {
		return nil, domain.ErrNotFound("export request", id.String())
	}
	if req.Status != domain.ExportApproved {
		return nil, domain.ErrForbidden("export request is not approved")
	}
	if req.Expired(time.Now()) {
		return nil, domain.ErrForbidden("export approval expired")
	}
	return req, nil
}

// CanExport evaluates a direct export of one table without the request
// workflow: role/table permission, classification, and volume ceilings.
func (e *Engine) CanExport(ctx context.Context, db repository.DBTX, table string, recordCount int, requester Requester) (*ExportCheck, error) {
	if err := domain.ValidateTableName(table); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if recordCount < 0 {
		return nil, domain.ErrValidation("record count must not be negative")
	}

	if !e.tableAllowed(requester.Role, table) {
		return &ExportCheck{Allowed: false, Reason: "role may not export this table"}, nil
	}

	level, err := e.HighestClassification(ctx, db, table)
	if err != nil {
		return nil, err
	}

	check := &ExportCheck{Allowed: true, Classification: level}
	ceiling, ok := e.cfg.ExportCeilings[requester.Role]
	switch {
	case level.RequiresApproval():
		check.RequiresApproval = true
		check.Reason = "classification requires approval"
	case ok && recordCount > ceiling:
		check.RequiresApproval = true
		check.Reason = "record count exceeds role ceiling"
	case e.cfg.RestrictedBulkRoles[requester.Role] && recordCount > e.cfg.BulkExportThreshold:
		check.RequiresApproval = true
		check.Reason = "bulk export restricted for role"
	}
	return check, nil
}

// ListRequests returns export requests. With all=true the listing is gated to
// admin and chief staff; otherwise only the caller's own requests return.
func (e *Engine) ListRequests(ctx context.Context, db repository.DBTX, requester Requester, all bool, limit int) ([]domain.ExportRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if all {
		if requester.Role != domain.RoleAdmin && requester.Role != domain.RoleChiefStaff {
			return nil, domain.ErrForbidden("listing all export requests requires admin or chief staff")
		}
		reqs, err := e.exports.ListAll(ctx, db, limit)
		if err != nil {
			return nil, domain.ErrPersistence("export list", err)
		}
		return reqs, nil
	}
	reqs, err := e.exports.ListByRequester(ctx, db, requester.ID, limit)
	if err != nil {
		return nil, domain.ErrPersistence("export list", err)
	}
	return reqs, nil
}

// riskForLevel maps classification sensitivity to an audit risk score.
func riskForLevel(level domain.Level) int {
	switch level {
	case domain.LevelRestricted:
		return 80
	case domain.LevelConfidential:
		return 60
	case domain.LevelInternal:
		return 30
	default:
		return 10
	}
}
