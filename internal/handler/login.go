package handler

import (
	"net/http"

	"github.com/caregrid/sentinel/internal/auth"
	"github.com/caregrid/sentinel/internal/guard"
	"github.com/caregrid/sentinel/internal/metrics"
	"github.com/caregrid/sentinel/internal/repository"
)

// LoginHandler exposes the failed-login throttle: recording failures,
// CAPTCHA issuance and validation, and ban status checks.
type LoginHandler struct {
	throttle *guard.LoginThrottle
	db       repository.DBTX
	metrics  *metrics.Metrics
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(throttle *guard.LoginThrottle, db repository.DBTX, m *metrics.Metrics) *LoginHandler {
	return &LoginHandler{throttle: throttle, db: db, metrics: m}
}

// RecordFailure handles POST /login/failure.
func (h *LoginHandler) RecordFailure(w http.ResponseWriter, r *http.Request) {
	signals := auth.SignalsFromRequest(r)
	banned, err := h.throttle.RecordFailure(r.Context(), h.db, signals)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.metrics.RecordLoginFailure()
	if banned {
		h.metrics.RecordBanIssued()
	}

	needsCaptcha, err := h.throttle.NeedsCaptcha(r.Context(), h.db, signals)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"recorded":      true,
		"needs_captcha": needsCaptcha,
	})
}

// ClearOnSuccess handles POST /login/success.
func (h *LoginHandler) ClearOnSuccess(w http.ResponseWriter, r *http.Request) {
	signals := auth.SignalsFromRequest(r)
	if err := h.throttle.ClearOnSuccess(r.Context(), h.db, signals); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// Status handles GET /login/status.
func (h *LoginHandler) Status(w http.ResponseWriter, r *http.Request) {
	signals := auth.SignalsFromRequest(r)

	banned, remaining, err := h.throttle.IsBanned(r.Context(), h.db, signals)
	if err != nil {
		RespondError(w, err)
		return
	}
	needsCaptcha := false
	if !banned {
		needsCaptcha, err = h.throttle.NeedsCaptcha(r.Context(), h.db, signals)
		if err != nil {
			RespondError(w, err)
			return
		}
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"banned":           banned,
		"ban_seconds_left": int(remaining.Seconds()),
		"needs_captcha":    needsCaptcha,
	})
}

// IssueCaptcha handles POST /login/captcha.
func (h *LoginHandler) IssueCaptcha(w http.ResponseWriter, r *http.Request) {
	signals := auth.SignalsFromRequest(r)
	challenge, err := h.throttle.IssueCaptcha(r.Context(), h.db, signals)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.metrics.RecordCaptchaIssued()
	RespondJSON(w, http.StatusCreated, challenge)
}

type captchaAnswerInput struct {
	Answer int `json:"answer"`
}

// ValidateCaptcha handles POST /login/captcha/validate.
func (h *LoginHandler) ValidateCaptcha(w http.ResponseWriter, r *http.Request) {
	var input captchaAnswerInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	ok, err := h.throttle.ValidateCaptcha(r.Context(), h.db, auth.SignalsFromRequest(r), input.Answer)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}
