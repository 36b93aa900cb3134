package handler

import (
	"net/http"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/governance"
	"github.com/caregrid/sentinel/internal/repository"
)

// ClassificationHandler exposes data classification management.
type ClassificationHandler struct {
	engine *governance.Engine
	db     repository.DBTX
}

// NewClassificationHandler creates a new ClassificationHandler.
func NewClassificationHandler(engine *governance.Engine, db repository.DBTX) *ClassificationHandler {
	return &ClassificationHandler{engine: engine, db: db}
}

type classifyInput struct {
	TableName     string `json:"table_name"`
	ColumnName    string `json:"column_name"`
	Level         string `json:"level"`
	RetentionDays int    `json:"retention_days"`
}

// Classify handles PUT /classifications.
func (h *ClassificationHandler) Classify(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input classifyInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	level, err := domain.ParseLevel(input.Level)
	if err != nil {
		RespondError(w, domain.ErrValidation("unknown classification level"))
		return
	}

	cls, err := h.engine.Classify(r.Context(), h.db, input.TableName, input.ColumnName, level, input.RetentionDays, requester.Name)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, cls)
}

// Get handles GET /classifications?table=...&column=...
func (h *ClassificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	column := r.URL.Query().Get("column")
	if table == "" || column == "" {
		RespondError(w, domain.ErrValidation("table and column are required"))
		return
	}

	cls, err := h.engine.GetClassification(r.Context(), h.db, table, column)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, cls)
}

// Highest handles GET /classifications/highest?table=...
func (h *ClassificationHandler) Highest(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		RespondError(w, domain.ErrValidation("table is required"))
		return
	}

	level, err := h.engine.HighestClassification(r.Context(), h.db, table)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"table_name":         table,
		"level":              level,
		"requires_approval":  level.RequiresApproval(),
		"watermark_required": level.WatermarkRequired(),
	})
}
