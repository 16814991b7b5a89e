package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"bff-proxy/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// NewTestUser creates a user profile with one permission.
func NewTestUser(opts ...func(*domain.UserProfile)) *domain.UserProfile {
	n := idCounter.Add(1)
	u := &domain.UserProfile{
		ID:          n,
		Email:       fmt.Sprintf("user%d@example.com", n),
		Name:        fmt.Sprintf("Test User %d", n),
		Permissions: []string{"user"},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func WithPermissions(perms ...string) func(*domain.UserProfile) {
	return func(u *domain.UserProfile) {
		u.Permissions = perms
	}
}

// NewTestSession creates an anonymous session active now.
// Pass options to override specific fields
func NewTestSession(opts ...func(*domain.Session)) *domain.Session {
	now := time.Now()
	s := &domain.Session{
		ID:             nextID("session"),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithSessionID(id string) func(*domain.Session) {
	return func(s *domain.Session) {
		s.ID = id
	}
}

// WithAuthenticated stores a token pair and a user.
func WithAuthenticated(access, refresh string, user *domain.UserProfile) func(*domain.Session) {
	return func(s *domain.Session) {
		s.AccessToken = access
		s.RefreshToken = refresh
		s.User = user
	}
}

func WithCSRFToken(token string) func(*domain.Session) {
	return func(s *domain.Session) {
		s.CSRFToken = token
	}
}

func WithLastActivity(t time.Time) func(*domain.Session) {
	return func(s *domain.Session) {
		s.LastActivityAt = t
	}
}

// NewTestErrorEntry creates a javascript error received now.
func NewTestErrorEntry(opts ...func(*domain.ErrorEntry)) *domain.ErrorEntry {
	now := time.Now().UTC()
	e := &domain.ErrorEntry{
		ID:         "err_" + nextID("test"),
		Type:       "javascript",
		Severity:   "error",
		Message:    "test error",
		Context:    map[string]any{"url": "http://localhost/page", "userAgent": "test-agent"},
		Timestamp:  now.Format(time.RFC3339),
		ReceivedAt: now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithErrorType(typ string) func(*domain.ErrorEntry) {
	return func(e *domain.ErrorEntry) {
		e.Type = typ
	}
}

func WithErrorTimestamp(ts string) func(*domain.ErrorEntry) {
	return func(e *domain.ErrorEntry) {
		e.Timestamp = ts
	}
}

// ResetIDCounter resets the ID counter (useful for deterministic tests)
func ResetIDCounter() {
	idCounter.Store(0)
}
