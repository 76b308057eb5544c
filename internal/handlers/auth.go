package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hanko-field/storebot/internal/platform/httpx"
	"github.com/hanko-field/storebot/internal/platform/requestctx"
)

const bearerPrefix = "bearer "

// RequireAdminToken rejects requests whose bearer token does not match token.
// An empty token disables the admin group entirely.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	token = strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token == "" {
				httpx.WriteError(ctx, w, httpx.NewError("admin_api_disabled", "admin api token is not configured", http.StatusServiceUnavailable))
				return
			}
			presented, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="storebot-admin"`)
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "bearer token required", http.StatusUnauthorized))
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				requestctx.Logger(ctx).Warn("admin token rejected", zap.String("path", r.URL.Path))
				httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "invalid admin token", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
