package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/caregrid/sentinel/internal/auth"
	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/metrics"
	"github.com/caregrid/sentinel/internal/repository"
	"github.com/caregrid/sentinel/internal/session"
)

// SessionHandler exposes session lifecycle endpoints: establishing a
// monitored session after authentication and validating it afterwards.
type SessionHandler struct {
	monitor *session.Monitor
	jwtMgr  *auth.JWTManager
	db      repository.DBTX
	metrics *metrics.Metrics
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(monitor *session.Monitor, jwtMgr *auth.JWTManager, db repository.DBTX, m *metrics.Metrics) *SessionHandler {
	return &SessionHandler{monitor: monitor, jwtMgr: jwtMgr, db: db, metrics: m}
}

type initializeSessionInput struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// Initialize handles POST /sessions. It is called after credentials have
// been verified upstream; it binds a fresh session id to the client's
// fingerprint and issues a token carrying it.
func (h *SessionHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var input initializeSessionInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	userID, err := uuid.Parse(input.UserID)
	if err != nil {
		RespondError(w, domain.ErrValidation("user_id must be a UUID"))
		return
	}
	role := domain.Role(input.Role)
	if !role.Valid() {
		RespondError(w, domain.ErrValidation("unknown role"))
		return
	}

	sessionID := uuid.New().String()
	signals := auth.SignalsFromRequest(r)
	if err := h.monitor.Initialize(r.Context(), h.db, sessionID, userID, role, signals); err != nil {
		RespondError(w, err)
		return
	}

	token, err := h.jwtMgr.GenerateToken(userID, sessionID, input.DisplayName, role)
	if err != nil {
		RespondError(w, err)
		return
	}

	h.metrics.RecordSessionInitialized()
	RespondJSON(w, http.StatusCreated, map[string]string{
		"session_id": sessionID,
		"token":      token,
	})
}

// Validate handles GET /sessions/validate. The session id comes from the
// bearer token; the caller should switch to the returned session_id when
// rotation occurred.
func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		RespondError(w, domain.ErrUnauthorized("missing credentials"))
		return
	}

	res, err := h.monitor.Validate(r.Context(), h.db, claims.SessionID, auth.SignalsFromRequest(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	outcome := "valid"
	if !res.Valid {
		outcome = "invalid"
	}
	h.metrics.RecordSessionValidation(outcome)
	if res.Rotated {
		h.metrics.RecordSessionRotation()
		w.Header().Set("X-Session-Id", res.SessionID)
	}
	RespondJSON(w, http.StatusOK, res)
}
