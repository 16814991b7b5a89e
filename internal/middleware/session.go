package middleware

import (
	"log/slog"
	"net/http"

	"bff-proxy/internal/observability"
	"bff-proxy/internal/response"
	"bff-proxy/internal/session"
)

// Session starts the caller's session and stores it in the request context.
// A session found idle past its lifetime is answered with 401 whatever the
// method or path.
func Session(mgr *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, err := mgr.Start(w, r)
			if err != nil {
				observability.FromContext(r.Context()).Error("failed to start session", slog.String("error", err.Error()))
				response.ServerError(w, "Internal server error")
				return
			}

			if st.IsExpired() {
				observability.FromContext(r.Context()).Info("session expired")
				response.Unauthorized(w, "Session expired")
				return
			}

			ctx := session.WithStore(r.Context(), st)
			ctx = observability.WithSessionID(ctx, st.ID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
