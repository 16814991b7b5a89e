package middleware

import (
	"log/slog"
	"net/http"

	"bff-proxy/internal/observability"
	"bff-proxy/internal/response"
	"bff-proxy/internal/security"
	"bff-proxy/internal/session"
)

// CSRF validates the synchronizer token on state-changing requests. Requests
// whose path contains any of excluded pass unchecked.
func CSRF(excluded ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !security.IsStateChangingRequest(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			st, ok := session.FromContext(r.Context())
			if !ok || !security.NewCSRFGuard(st).Protect(r, excluded) {
				logCSRFFailure(r)
				observability.CSRFFailuresTotal.Inc()
				response.Error(w, http.StatusForbidden, response.CodeCSRF, "Invalid CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// logCSRFFailure logs a security event when CSRF validation fails.
func logCSRFFailure(r *http.Request) {
	observability.FromContext(r.Context()).Warn("CSRF validation failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
