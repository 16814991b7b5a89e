package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"bff-proxy/internal/observability"
	"bff-proxy/internal/security"
	"bff-proxy/internal/testutil"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

const csrfToken = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestCSRF(t *testing.T) {
	sess := testutil.NewTestSession(testutil.WithCSRFToken(csrfToken))

	tests := []struct {
		name     string
		request  func() *http.Request
		wantCode int
	}{
		{
			name:     "safe method passes without token",
			request:  func() *http.Request { return httptest.NewRequest(http.MethodGet, "/menu", nil) },
			wantCode: http.StatusOK,
		},
		{
			name: "header token",
			request: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/menu", nil)
				r.Header.Set(security.CSRFHeader, csrfToken)
				return r
			},
			wantCode: http.StatusOK,
		},
		{
			name: "form field token",
			request: func() *http.Request {
				form := url.Values{security.CSRFFormField: {csrfToken}}
				r := httptest.NewRequest(http.MethodPut, "/menu/1", strings.NewReader(form.Encode()))
				r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return r
			},
			wantCode: http.StatusOK,
		},
		{
			name: "json body token",
			request: func() *http.Request {
				return testutil.NewJSONRequest(t, http.MethodPatch, "/menu/1", map[string]any{
					security.CSRFFormField: csrfToken,
					"name":                 "soup",
				})
			},
			wantCode: http.StatusOK,
		},
		{
			name:     "missing token",
			request:  func() *http.Request { return httptest.NewRequest(http.MethodDelete, "/menu/1", nil) },
			wantCode: http.StatusForbidden,
		},
		{
			name: "wrong token",
			request: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/menu", nil)
				r.Header.Set(security.CSRFHeader, strings.Repeat("f", 64))
				return r
			},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "excluded path",
			request:  func() *http.Request { return httptest.NewRequest(http.MethodPost, "/auth/login", nil) },
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, _ := newTestManager(t, sess)
			handler := Session(mgr)(CSRF("/auth/login")(okHandler))

			before := promtest.ToFloat64(observability.CSRFFailuresTotal)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, withSessionCookie(tt.request(), sess.ID))

			if tt.wantCode == http.StatusOK {
				testutil.AssertStatusCode(t, w, http.StatusOK)
				return
			}
			testutil.AssertEnvelopeError(t, w, http.StatusForbidden, "CSRF_ERROR", "Invalid CSRF token")
			assert.Equal(t, before+1, promtest.ToFloat64(observability.CSRFFailuresTotal))
		})
	}
}

func TestCSRF_JSONBodyRestoredForHandler(t *testing.T) {
	sess := testutil.NewTestSession(testutil.WithCSRFToken(csrfToken))
	mgr, _ := newTestManager(t, sess)

	var got string
	handler := Session(mgr)(CSRF()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		got = buf.String()
	})))

	req := httptest.NewRequest(http.MethodPost, "/menu", strings.NewReader(`{"_csrf_token":"`+csrfToken+`","qty":2}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), withSessionCookie(req, sess.ID))

	assert.JSONEq(t, `{"_csrf_token":"`+csrfToken+`","qty":2}`, got)
}

func TestCSRF_SessionWithoutToken(t *testing.T) {
	sess := testutil.NewTestSession()
	mgr, _ := newTestManager(t, sess)

	req := httptest.NewRequest(http.MethodPost, "/menu", nil)
	req.Header.Set(security.CSRFHeader, "")
	w := httptest.NewRecorder()
	Session(mgr)(CSRF()(okHandler)).ServeHTTP(w, withSessionCookie(req, sess.ID))

	testutil.AssertEnvelopeError(t, w, http.StatusForbidden, "CSRF_ERROR", "")
}
