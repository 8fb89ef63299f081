package httpapi

import (
	"net/http"
	"time"

	"github.com/fanstage/backoffice/internal/auth"
)

// publicPaths skip bearer authentication. The webhook authenticates with its
// HMAC signature and reconcile with the service token.
var publicPaths = map[string]struct{}{
	"/healthz":               {},
	"/readyz":                {},
	"/v1/info":               {},
	"/metrics":               {},
	"/v1/auth/token":         {},
	"/v1/payments/webhook":   {},
	"/v1/payments/reconcile": {},
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := extractBearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := auth.ContextWithUserID(r.Context(), claims.Subject)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type devTokenRequest struct {
	UserID string `json:"user_id"`
	TTLSec int64  `json:"ttl_seconds"`
}

// handleDevToken mints a short-lived token for local development and tests.
func (a *API) handleDevToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req devTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	ttl := time.Duration(req.TTLSec) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	token, err := auth.GenerateToken(req.UserID, ttl)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int64(ttl.Seconds()),
	})
}
