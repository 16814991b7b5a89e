package middleware

import (
	"log/slog"
	"net/http"

	"bff-proxy/internal/observability"
)

// ReleaseUploads removes the temp files of a multipart form parsed anywhere
// below it, whether or not the request was accepted. net/http only cleans up
// forms parsed on the request it created, and StripPrefix hands the rest of
// the chain a copy.
func ReleaseUploads(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if r.MultipartForm == nil {
				return
			}
			if err := r.MultipartForm.RemoveAll(); err != nil {
				observability.FromContext(r.Context()).Warn("failed to remove upload temp files",
					slog.String("error", err.Error()))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
