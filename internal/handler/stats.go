package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/caregrid/sentinel/internal/governance"
	"github.com/caregrid/sentinel/internal/repository"
)

// StatsHandler exposes security statistics and recent incidents.
type StatsHandler struct {
	engine *governance.Engine
	db     repository.DBTX
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(engine *governance.Engine, db repository.DBTX) *StatsHandler {
	return &StatsHandler{engine: engine, db: db}
}

// Stats handles GET /stats?window_hours=24.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	hours, _ := strconv.Atoi(r.URL.Query().Get("window_hours"))

	stats, err := h.engine.GetStats(r.Context(), h.db, time.Duration(hours)*time.Hour)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

// Incidents handles GET /incidents?limit=50.
func (h *StatsHandler) Incidents(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	incidents, err := h.engine.GetRecentIncidents(r.Context(), h.db, requester, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incidents,
		"count":     len(incidents),
	})
}
