package middleware

import (
	"net/http"
	"strings"
)

// StripPrefix removes prefix from the start of the path once and makes sure
// the result begins with a single slash. Unlike http.StripPrefix, paths
// without the prefix pass through unchanged.
func StripPrefix(prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r2 := r.Clone(r.Context())
			r2.URL.Path = normalizePath(strings.TrimPrefix(r.URL.Path, prefix))
			if r.URL.RawPath != "" {
				r2.URL.RawPath = normalizePath(strings.TrimPrefix(r.URL.RawPath, prefix))
			}
			next.ServeHTTP(w, r2)
		})
	}
}

func normalizePath(p string) string {
	return "/" + strings.TrimLeft(p, "/")
}
