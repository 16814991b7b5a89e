package middleware

import (
	"net/http"
	"testing"
	"time"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/session"
	"bff-proxy/internal/testutil"
)

const testCookie = "test_session"

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// newTestManager returns a manager over a mock repository seeded with seeds.
func newTestManager(t *testing.T, seeds ...*domain.Session) (*session.Manager, *testutil.MockSessionRepository) {
	t.Helper()
	repo := testutil.NewMockSessionRepository()
	for _, s := range seeds {
		repo.Put(s)
	}
	return session.NewManager(repo, session.Options{CookieName: testCookie, Lifetime: time.Hour}), repo
}

func withSessionCookie(r *http.Request, id string) *http.Request {
	r.AddCookie(&http.Cookie{Name: testCookie, Value: id})
	return r
}
