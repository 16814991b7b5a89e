package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// UserProfile is the user returned by the upstream login and profile endpoints.
type UserProfile struct {
	ID          any      `json:"id"`
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions"`
}

// RateLimitWindow is the fixed-window counter kept per session.
type RateLimitWindow struct {
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
}

// Session is the server-side state behind a session cookie. Credentials never
// leave this struct towards the browser.
type Session struct {
	ID             string          `json:"id"`
	AccessToken    string          `json:"-"`
	RefreshToken   string          `json:"-"`
	TokenExpiresAt time.Time       `json:"token_expires_at"` // zero when unknown
	User           *UserProfile    `json:"user,omitempty"`
	CSRFToken      string          `json:"-"`
	RateLimit      RateLimitWindow `json:"rate_limit"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

// IsAuthenticated reports whether both an access token and a user are present.
func (s *Session) IsAuthenticated() bool {
	return s.AccessToken != "" && s.User != nil
}

// ClearCredentials removes tokens, expiry and user together.
func (s *Session) ClearCredentials() {
	s.AccessToken = ""
	s.RefreshToken = ""
	s.TokenExpiresAt = time.Time{}
	s.User = nil
}

// Clone returns a deep copy so callers never share a stored record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User != nil {
		u := *s.User
		u.Permissions = append([]string(nil), s.User.Permissions...)
		c.User = &u
	}
	return &c
}

// SessionRepository defines the interface for session data access.
// Update applies fn to the latest stored record atomically.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Rename(ctx context.Context, oldID, newID string) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, idleBefore time.Time) (int64, error)
	Count(ctx context.Context) (int, error)
}
