package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bff-proxy/internal/fakeupstream"
	"bff-proxy/internal/repository/memory"
	"bff-proxy/internal/security"
	"bff-proxy/internal/service"
	"bff-proxy/internal/session"
	"bff-proxy/internal/testutil"
	"bff-proxy/internal/upstream"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const testCookie = "test_session"

type testEnv struct {
	upstream    *fakeupstream.Server // nil when a custom upstream handler is used
	upstreamURL string
	mgr         *session.Manager
	errorRepo   *testutil.MockErrorRepository
	authService *service.AuthService
	auth        *AuthHandler
	errorLog    *ErrorLogHandler
	proxy       *ProxyHandler
}

// newTestEnv wires the handlers to a fake upstream.
func newTestEnv(t *testing.T, opts ...fakeupstream.Option) *testEnv {
	t.Helper()
	fake := fakeupstream.New(opts...)
	env := newEnvWithUpstream(t, fake.Handler())
	env.upstream = fake
	return env
}

func newEnvWithUpstream(t *testing.T, h http.Handler) *testEnv {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return newEnvWithURL(t, srv.URL)
}

// newUnreachableEnv points the handlers at a closed port.
func newUnreachableEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return newEnvWithURL(t, url)
}

func newEnvWithURL(t *testing.T, url string) *testEnv {
	t.Helper()
	client := upstream.NewHTTPClient(2*time.Second, true)
	fwd := upstream.NewForwarder(url, client, upstream.NewRefresher(client, url, "/auth/refresh"))

	authService := service.NewAuthService(fwd, security.NewWindowLimiter(100, time.Minute))
	t.Cleanup(authService.Wait)

	errorRepo := testutil.NewMockErrorRepository()

	return &testEnv{
		upstreamURL: url,
		mgr:         session.NewManager(memory.NewSessionRepository(), session.Options{CookieName: testCookie, Lifetime: time.Hour}),
		errorRepo:   errorRepo,
		authService: authService,
		auth:        NewAuthHandler(authService, false),
		errorLog:    NewErrorLogHandler(service.NewErrorLogService(errorRepo), false),
		proxy:       NewProxyHandler(service.NewProxyService(fwd), 1<<20, false),
	}
}

// browser keeps the session cookie between requests.
type browser struct {
	t      *testing.T
	env    *testEnv
	cookie string
}

func (e *testEnv) browser(t *testing.T) *browser {
	return &browser{t: t, env: e}
}

// do starts the session the way the session middleware does and calls h.
func (b *browser) do(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	if b.cookie != "" {
		req.AddCookie(&http.Cookie{Name: testCookie, Value: b.cookie})
	}

	w := httptest.NewRecorder()
	st, err := b.env.mgr.Start(w, req)
	require.NoError(b.t, err)
	h(w, req.WithContext(session.WithStore(req.Context(), st)))

	for _, c := range w.Result().Cookies() {
		if c.Name != testCookie {
			continue
		}
		b.cookie = c.Value
		if c.MaxAge < 0 {
			b.cookie = ""
		}
	}
	return w
}

func (b *browser) doJSON(h http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(h, testutil.NewJSONRequest(b.t, method, target, body))
}

// login signs in as the fake upstream's demo user and returns the CSRF token.
func (b *browser) login() string {
	b.t.Helper()
	w := b.doJSON(b.env.auth.Login, http.MethodPost, "/auth/login", map[string]string{
		"email":    "demo@example.com",
		"password": "demo",
	})
	data := testutil.AssertSuccess(b.t, w, http.StatusOK)
	return data["csrf_token"].(string)
}

// withURLParam sets a chi path parameter on req.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
