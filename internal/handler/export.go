package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caregrid/sentinel/internal/auth"
	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/governance"
	"github.com/caregrid/sentinel/internal/metrics"
	"github.com/caregrid/sentinel/internal/repository"
)

// requesterFromRequest builds the governance requester identity from the
// authenticated claims on the request context.
func requesterFromRequest(r *http.Request) (governance.Requester, error) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return governance.Requester{}, domain.ErrUnauthorized("missing credentials")
	}
	id, err := claims.UserID()
	if err != nil {
		return governance.Requester{}, domain.ErrUnauthorized("malformed subject")
	}
	return governance.Requester{ID: id, Name: claims.DisplayName, Role: domain.Role(claims.Role)}, nil
}

// ExportHandler exposes the export approval workflow.
type ExportHandler struct {
	engine  *governance.Engine
	db      repository.DBTX
	metrics *metrics.Metrics
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(engine *governance.Engine, db repository.DBTX, m *metrics.Metrics) *ExportHandler {
	return &ExportHandler{engine: engine, db: db, metrics: m}
}

type exportRequestInput struct {
	ExportType    string          `json:"export_type"`
	Tables        []string        `json:"tables"`
	Filters       json.RawMessage `json:"filters"`
	Justification string          `json:"justification"`
}

// Request handles POST /exports.
func (h *ExportHandler) Request(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input exportRequestInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	req, err := h.engine.RequestExport(r.Context(), h.db, requester, governance.ExportInput{
		ExportType:    input.ExportType,
		Tables:        input.Tables,
		Filters:       input.Filters,
		Justification: input.Justification,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	h.metrics.RecordExportRequest(string(req.Classification), string(req.Status))
	RespondJSON(w, http.StatusCreated, req)
}

type exportDecisionInput struct {
	Notes string `json:"notes"`
}

// Approve handles POST /exports/{id}/approve.
func (h *ExportHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.engine.Approve)
}

// Reject handles POST /exports/{id}/reject.
func (h *ExportHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.engine.Reject)
}

type decisionFunc func(ctx context.Context, db repository.DBTX, id uuid.UUID, approver governance.Requester, notes string) (*domain.ExportRequest, error)

func (h *ExportHandler) decide(w http.ResponseWriter, r *http.Request, fn decisionFunc) {
	approver, err := requesterFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, domain.ErrValidation("id must be a UUID"))
		return
	}

	var input exportDecisionInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	req, err := fn(r.Context(), h.db, id, approver, input.Notes)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.metrics.RecordExportDecision(string(req.Status))
	RespondJSON(w, http.StatusOK, req)
}

// CheckApproval handles GET /exports/{id}/approval.
func (h *ExportHandler) CheckApproval(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, domain.ErrValidation("id must be a UUID"))
		return
	}

	req, err := h.engine.CheckApproval(r.Context(), h.db, id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, req)
}

// List handles GET /exports.
func (h *ExportHandler) List(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	all := r.URL.Query().Get("all") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	reqs, err := h.engine.ListRequests(r.Context(), h.db, requester, all, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"requests": reqs,
		"count":    len(reqs),
	})
}

type canExportInput struct {
	Table       string `json:"table"`
	RecordCount int    `json:"record_count"`
}

// CanExport handles POST /exports/check.
func (h *ExportHandler) CanExport(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input canExportInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	check, err := h.engine.CanExport(r.Context(), h.db, input.Table, input.RecordCount, requester)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, check)
}
