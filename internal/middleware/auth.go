package middleware

import (
	"net/http"

	"bff-proxy/internal/auth"
	"bff-proxy/internal/response"
	"bff-proxy/internal/session"
)

// RequireAuth rejects requests whose session holds no access token and user.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, ok := session.FromContext(r.Context())
		if !ok || !auth.NewTokenHandler(st).IsAuthenticated(r.Context()) {
			response.Unauthorized(w, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin guards the error log reads.
// TODO: check an admin permission once the upstream defines one; any
// authenticated user passes for now.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireAuth(next)
}
