package handler

import (
	"net/http"

	"github.com/caregrid/sentinel/internal/guard"
	"github.com/caregrid/sentinel/internal/metrics"
)

// GuardHandler exposes the input-inspection primitives: injection
// detection, sanitization, and context-aware escaping.
type GuardHandler struct {
	metrics *metrics.Metrics
}

// NewGuardHandler creates a new GuardHandler.
func NewGuardHandler(m *metrics.Metrics) *GuardHandler {
	return &GuardHandler{metrics: m}
}

type inspectInput struct {
	Text string `json:"text"`
}

// Inspect handles POST /guard/inspect.
func (h *GuardHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	var input inspectInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	category, matched := guard.MatchInjection(input.Text)
	if matched {
		h.metrics.RecordInjectionDetection(category)
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"injection": matched,
		"category":  category,
	})
}

type sanitizeInput struct {
	Text      string `json:"text"`
	AllowHTML bool   `json:"allow_html"`
}

// Sanitize handles POST /guard/sanitize.
func (h *GuardHandler) Sanitize(w http.ResponseWriter, r *http.Request) {
	var input sanitizeInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"sanitized": guard.Sanitize(input.Text, input.AllowHTML),
	})
}

type escapeInput struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

// Escape handles POST /guard/escape.
func (h *GuardHandler) Escape(w http.ResponseWriter, r *http.Request) {
	var input escapeInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	switch guard.EscapeContext(input.Context) {
	case guard.ContextHTML, guard.ContextAttribute, guard.ContextJavaScript, guard.ContextCSS, guard.ContextURL:
	default:
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "unknown escape context",
		})
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"escaped": guard.Escape(input.Text, guard.EscapeContext(input.Context)),
	})
}
