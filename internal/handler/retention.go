package handler

import (
	"net/http"

	"github.com/caregrid/sentinel/internal/governance"
	"github.com/caregrid/sentinel/internal/metrics"
	"github.com/caregrid/sentinel/internal/repository"
)

// RetentionHandler triggers the retention sweep. The route is admin-gated
// in the router; the handler just runs the sweep and reports per-policy
// outcomes.
type RetentionHandler struct {
	engine  *governance.Engine
	db      repository.DBTX
	metrics *metrics.Metrics
}

// NewRetentionHandler creates a new RetentionHandler.
func NewRetentionHandler(engine *governance.Engine, db repository.DBTX, m *metrics.Metrics) *RetentionHandler {
	return &RetentionHandler{engine: engine, db: db, metrics: m}
}

// Enforce handles POST /retention/enforce.
func (h *RetentionHandler) Enforce(w http.ResponseWriter, r *http.Request) {
	results, err := h.engine.EnforceRetentionPolicies(r.Context(), h.db)
	if err != nil {
		RespondError(w, err)
		return
	}
	for _, res := range results {
		if res.DeletedRows > 0 {
			h.metrics.RecordRetentionDeleted(res.Table, res.DeletedRows)
		}
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"policies": len(results),
		"results":  results,
	})
}
