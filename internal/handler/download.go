package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/caregrid/sentinel/internal/auth"
	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/governance"
	"github.com/caregrid/sentinel/internal/metrics"
	"github.com/caregrid/sentinel/internal/repository"
)

// DownloadHandler exposes download tracking, data-access audit logging,
// and watermarking.
type DownloadHandler struct {
	engine  *governance.Engine
	db      repository.DBTX
	metrics *metrics.Metrics
}

// NewDownloadHandler creates a new DownloadHandler.
func NewDownloadHandler(engine *governance.Engine, db repository.DBTX, m *metrics.Metrics) *DownloadHandler {
	return &DownloadHandler{engine: engine, db: db, metrics: m}
}

type downloadInput struct {
	FileName       string `json:"file_name"`
	FileType       string `json:"file_type"`
	RecordCount    int    `json:"record_count"`
	Classification string `json:"classification"`
}

// LogDownload handles POST /downloads.
func (h *DownloadHandler) LogDownload(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input downloadInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	level := domain.Level(input.Classification)
	signals := auth.SignalsFromRequest(r)
	act, err := h.engine.LogDownloadActivity(r.Context(), h.db, requester, governance.DownloadInput{
		FileName:       input.FileName,
		FileType:       input.FileType,
		RecordCount:    input.RecordCount,
		Classification: level,
		IPAddress:      signals.IP,
		Watermarked:    level.WatermarkRequired(),
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	h.metrics.RecordDownload(string(act.Classification))
	if act.Suspicious {
		h.metrics.RecordSuspiciousDownloads()
	}
	RespondJSON(w, http.StatusCreated, act)
}

type dataAccessInput struct {
	Action         string          `json:"action"`
	Resource       string          `json:"resource"`
	Classification string          `json:"classification"`
	Details        json.RawMessage `json:"details"`
}

// LogAccess handles POST /access-log.
func (h *DownloadHandler) LogAccess(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input dataAccessInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	err = h.engine.LogDataAccess(r.Context(), h.db, requester, input.Action, input.Resource,
		domain.Level(input.Classification), input.Details)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]bool{"logged": true})
}

type watermarkInput struct {
	Content        string `json:"content"`
	Classification string `json:"classification"`
}

// Watermark handles POST /downloads/watermark.
func (h *DownloadHandler) Watermark(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input watermarkInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	signals := auth.SignalsFromRequest(r)
	marked := governance.Watermark(input.Content, domain.Level(input.Classification), governance.WatermarkInfo{
		DownloaderName: requester.Name,
		DownloaderID:   requester.ID.String(),
		IPAddress:      signals.IP,
		DownloadedAt:   time.Now().UTC(),
	})
	RespondJSON(w, http.StatusOK, map[string]string{"content": marked})
}
