package service

import (
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bff-proxy/internal/repository/memory"
	"bff-proxy/internal/session"
	"bff-proxy/internal/upstream"

	"github.com/stretchr/testify/require"
)

// fakeUpstream records calls and answers through the function fields.
type fakeUpstream struct {
	mu    sync.Mutex
	calls []upstream.Call

	ForwardFunc func(ctx context.Context, creds upstream.Credentials, call upstream.Call) *upstream.Result
	UploadFunc  func(ctx context.Context, creds upstream.Credentials, call upstream.Call, files map[string][]*multipart.FileHeader) *upstream.Result
}

func (f *fakeUpstream) Forward(ctx context.Context, creds upstream.Credentials, call upstream.Call) *upstream.Result {
	f.record(call)
	return f.ForwardFunc(ctx, creds, call)
}

func (f *fakeUpstream) Upload(ctx context.Context, creds upstream.Credentials, call upstream.Call, files map[string][]*multipart.FileHeader) *upstream.Result {
	f.record(call)
	return f.UploadFunc(ctx, creds, call, files)
}

func (f *fakeUpstream) record(call upstream.Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeUpstream) Calls() []upstream.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upstream.Call(nil), f.calls...)
}

// jsonUpstream serves every call from a real forwarder against handler.
func jsonUpstream(t *testing.T, handler http.HandlerFunc) *fakeUpstream {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	fwd := upstream.NewForwarder(srv.URL, upstream.NewHTTPClient(5*time.Second, true), nil)
	return &fakeUpstream{
		ForwardFunc: fwd.Forward,
		UploadFunc:  fwd.Upload,
	}
}

func unreachableUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	fwd := upstream.NewForwarder(url, upstream.NewHTTPClient(time.Second, true), nil)
	return &fakeUpstream{ForwardFunc: fwd.Forward, UploadFunc: fwd.Upload}
}

func newSessionContext(t *testing.T) SessionContext {
	t.Helper()
	mgr := session.NewManager(memory.NewSessionRepository(), session.Options{CookieName: "sid", Lifetime: time.Hour})
	st, err := mgr.Start(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	return NewSessionContext(st)
}
