// Package auth keeps upstream credentials in the server-side session.
package auth

import (
	"context"
	"time"

	"bff-proxy/internal/domain"
)

// SessionStore is the subset of the session store credentials live in.
type SessionStore interface {
	Session(ctx context.Context) (*domain.Session, error)
	Update(ctx context.Context, fn func(*domain.Session) error) error
	Regenerate(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// TokenHandler is the typed accessor layer over the session for the token
// pair, its expiry and the user profile.
type TokenHandler struct {
	store SessionStore
	now   func() time.Time
}

func NewTokenHandler(store SessionStore) *TokenHandler {
	return &TokenHandler{store: store, now: time.Now}
}

func (h *TokenHandler) session(ctx context.Context) *domain.Session {
	s, err := h.store.Session(ctx)
	if err != nil || s == nil {
		return &domain.Session{}
	}
	return s
}

func (h *TokenHandler) AccessToken(ctx context.Context) string {
	return h.session(ctx).AccessToken
}

func (h *TokenHandler) RefreshToken(ctx context.Context) string {
	return h.session(ctx).RefreshToken
}

func (h *TokenHandler) User(ctx context.Context) *domain.UserProfile {
	return h.session(ctx).User
}

// TokenExpiresAt is zero when the upstream did not report an expiry.
func (h *TokenHandler) TokenExpiresAt(ctx context.Context) time.Time {
	return h.session(ctx).TokenExpiresAt
}

// SetTokens stores a freshly issued pair after login and rotates the session id.
func (h *TokenHandler) SetTokens(ctx context.Context, access, refresh string, expiresIn *int64) error {
	err := h.store.Update(ctx, func(s *domain.Session) error {
		s.AccessToken = access
		s.RefreshToken = refresh
		s.TokenExpiresAt = time.Time{}
		if expiresIn != nil && *expiresIn > 0 {
			s.TokenExpiresAt = h.now().Add(time.Duration(*expiresIn) * time.Second)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return h.store.Regenerate(ctx)
}

// UpdateTokens stores the result of a refresh. The refresh token and expiry
// are kept when the upstream does not send new ones. The session id is not
// rotated.
func (h *TokenHandler) UpdateTokens(ctx context.Context, access, refresh string, expiresIn *int64) error {
	return h.store.Update(ctx, func(s *domain.Session) error {
		s.AccessToken = access
		if refresh != "" {
			s.RefreshToken = refresh
		}
		if expiresIn != nil && *expiresIn > 0 {
			s.TokenExpiresAt = h.now().Add(time.Duration(*expiresIn) * time.Second)
		}
		return nil
	})
}

// SetUser replaces the stored profile wholesale.
func (h *TokenHandler) SetUser(ctx context.Context, user *domain.UserProfile) error {
	return h.store.Update(ctx, func(s *domain.Session) error {
		if user == nil {
			s.User = nil
			return nil
		}
		u := *user
		u.Permissions = append([]string(nil), user.Permissions...)
		s.User = &u
		return nil
	})
}

// ClearTokens removes both tokens, the expiry and the user.
func (h *TokenHandler) ClearTokens(ctx context.Context) error {
	return h.store.Update(ctx, func(s *domain.Session) error {
		s.ClearCredentials()
		return nil
	})
}

// Destroy ends the whole session.
func (h *TokenHandler) Destroy(ctx context.Context) error {
	return h.store.Destroy(ctx)
}

// IsAuthenticated requires an access token and a user. Local expiry is
// advisory and not consulted here.
func (h *TokenHandler) IsAuthenticated(ctx context.Context) bool {
	return h.session(ctx).IsAuthenticated()
}

// HasValidAccessToken additionally checks the locally tracked expiry.
func (h *TokenHandler) HasValidAccessToken(ctx context.Context) bool {
	s := h.session(ctx)
	if s.AccessToken == "" {
		return false
	}
	if s.TokenExpiresAt.IsZero() {
		return true
	}
	return h.now().Before(s.TokenExpiresAt)
}

func (h *TokenHandler) HasRefreshToken(ctx context.Context) bool {
	return h.session(ctx).RefreshToken != ""
}
