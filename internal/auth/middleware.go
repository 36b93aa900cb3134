package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
)

type contextKey string

const (
	claimsKey  contextKey = "auth_claims"
	subjectKey contextKey = "auth_subject"
	roleKey    contextKey = "auth_role"
)

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// SubjectFromContext extracts the subject ID string from request context.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

// RoleFromContext extracts the verified role set by RequireRole.
func RoleFromContext(ctx context.Context) domain.Role {
	role, _ := ctx.Value(roleKey).(domain.Role)
	return role
}

// SignalsFromRequest collects the client signals that feed fingerprinting.
func SignalsFromRequest(r *http.Request) domain.ClientSignals {
	return domain.ClientSignals{
		IP:             clientIP(r),
		UserAgent:      r.Header.Get("User-Agent"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
	}
}

func clientIP(r *http.Request) string {
	// First hop of X-Forwarded-For when behind the ingress proxy.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Authenticate returns middleware that validates the bearer token and stores
// its claims in the request context. Token claims are not yet authorization:
// RequireRole performs the session and role verification.
func Authenticate(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidate(r, jwtMgr)
			if err != nil {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"`+err.Error()+`"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, subjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that runs the access controller against the
// session carried by the token. On a rotation the successor id is returned in
// the X-Session-Id response header.
func RequireRole(ac *AccessController, db repository.DBTX, required domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"no auth context"}`, http.StatusUnauthorized)
				return
			}

			decision, err := ac.CheckAccess(r.Context(), db, claims.SessionID, SignalsFromRequest(r), required)
			if err != nil {
				status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
				if appErr, ok := err.(*domain.AppError); ok {
					status, code = appErr.Status, appErr.Code
				}
				http.Error(w, fmt.Sprintf(`{"code":%q,"message":"access check failed"}`, code), status)
				return
			}
			if !decision.Allowed {
				http.Error(w, `{"code":"FORBIDDEN","message":"`+decision.Reason+`"}`, http.StatusForbidden)
				return
			}
			if decision.Rotated {
				w.Header().Set("X-Session-Id", decision.SessionID)
			}

			ctx := context.WithValue(r.Context(), roleKey, decision.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAndValidate(r *http.Request, jwtMgr *JWTManager) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("invalid Authorization format")
	}

	return jwtMgr.ValidateToken(parts[1])
}
