package middleware

import (
	"context"
	"net/http"
	"strings"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/application"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/contextkeys"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// Paths reachable without a session: sign-in/sign-up, the runtime config
// endpoint, operational probes, and the webhook ingress (authenticated by the
// payment provider's signature, which the backend verifies). Exact matches
// only, except the webhook subtree; a prefix match would also whitelist
// look-alike paths such as /configuration.
var publicExactPaths = []string{
	"/sign-in",
	"/sign-up",
	"/config",
	"/health",
	"/ready",
	"/metrics",
}

var publicPathPrefixes = []string{
	"/webhooks/",
}

func isPublicPath(path string) bool {
	for _, p := range publicExactPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// SessionAuthMiddleware enforces a valid bearer session on every protected
// route. An invalid or missing session answers 401 with a sign-in redirect
// hint: a session-level problem is not locally recoverable, the dashboard
// must navigate. The test-mode flag disables enforcement entirely.
func SessionAuthMiddleware(authService *application.AuthService, cfgProvider config.Provider, logger domain.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg := cfgProvider.Get()

			if cfg.Auth.TestModeBypass {
				next.ServeHTTP(w, r)
				return
			}
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				logger.Warn(r.Context(), "Session auth failed: no bearer token", "path", r.URL.Path)
				domain.NewErrorResponse(domain.ErrUnauthorized, "Authentication required.", "").
					WithRedirect(cfg.Auth.SignInPath).
					WriteJSON(w, http.StatusUnauthorized)
				return
			}

			user, err := authService.ProcessToken(r.Context(), token)
			if err != nil {
				logger.Warn(r.Context(), "Session auth failed: token rejected", "path", r.URL.Path, "error", err.Error())
				domain.NewErrorResponse(domain.ErrUnauthorized, "Session is invalid or expired.", "").
					WithRedirect(cfg.Auth.SignInPath).
					WriteJSON(w, http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, contextkeys.UserIDKey, user.UserID)
			ctx = context.WithValue(ctx, contextkeys.SessionTokenKey, user.Token)
			ctx = context.WithValue(ctx, contextkeys.AuthUserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get(authorizationHeader)
	if strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimPrefix(header, bearerPrefix)
	}
	// WebSocket upgrades from the browser cannot set headers; the token
	// arrives as a query parameter there.
	return r.URL.Query().Get("token")
}
