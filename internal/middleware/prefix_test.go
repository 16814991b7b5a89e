package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		target string
		want   string
	}{
		{prefix: "/api", target: "/api/menu", want: "/menu"},
		{prefix: "/api", target: "/api", want: "/"},
		{prefix: "/api", target: "/api//auth/login", want: "/auth/login"},
		{prefix: "/api", target: "/other/menu", want: "/other/menu"},
		{prefix: "/api", target: "/api/api/menu", want: "/api/menu"},
		{prefix: "", target: "/menu", want: "/menu"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var got, gotQuery string
			handler := StripPrefix(tt.prefix)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.URL.Path
				gotQuery = r.URL.RawQuery
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target+"?page=1", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, "page=1", gotQuery)
			assert.Equal(t, tt.target, req.URL.Path, "original request untouched")
		})
	}
}
