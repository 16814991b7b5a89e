package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/observability"
	"bff-proxy/internal/response"
	"bff-proxy/internal/security"
	"bff-proxy/internal/upstream"

	"github.com/tidwall/gjson"
)

const (
	loginEndpoint  = "/auth/login"
	logoutEndpoint = "/auth/logout"
	meEndpoint     = "/auth/me"

	defaultLogoutTimeout = 5 * time.Second
)

// LoginResult is returned to the browser after login. It never carries tokens.
type LoginResult struct {
	User      any    `json:"user"`
	CSRFToken string `json:"csrf_token"`
}

// StatusResult describes the caller's authentication state.
type StatusResult struct {
	Authenticated bool                `json:"authenticated"`
	User          *domain.UserProfile `json:"user"`
	CSRFToken     string              `json:"csrf_token"`
}

type AuthService struct {
	upstream      Upstream
	limiter       *security.WindowLimiter
	logoutTimeout time.Duration

	pending sync.WaitGroup
}

func NewAuthService(up Upstream, limiter *security.WindowLimiter) *AuthService {
	return &AuthService{
		upstream:      up,
		limiter:       limiter,
		logoutTimeout: defaultLogoutTimeout,
	}
}

// Login exchanges credentials with the upstream, stores the issued tokens and
// profile in the session and rotates both the session id and the CSRF token.
func (s *AuthService) Login(ctx context.Context, sc SessionContext, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, &domain.ValidationError{
			Fields:  []string{"email", "password"},
			Message: "Email and password are required",
		}
	}

	res := s.upstream.Forward(ctx, nil, upstream.Call{
		Method:   http.MethodPost,
		Endpoint: loginEndpoint,
		Body:     map[string]string{"email": email, "password": password},
		NoAuth:   true,
	})

	if res.TransportFailed() {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, res.Err)
	}
	if res.Status != http.StatusOK {
		return nil, &UpstreamError{
			Status:  res.Status,
			Code:    response.CodeAuthFailed,
			Message: stringField(res, "message", "Authentication failed"),
		}
	}

	access := res.Field("access_token")
	refresh := res.Field("refresh_token")
	if access.Type != gjson.String || refresh.Type != gjson.String {
		return nil, fmt.Errorf("%w: login reply lacks tokens", domain.ErrInvalidUpstreamResponse)
	}

	user := res.Field("user")
	if perms := user.Get("permissions"); !perms.IsArray() || len(perms.Array()) == 0 {
		return nil, domain.ErrNoPermissions
	}

	if err := sc.Tokens.SetTokens(ctx, access.String(), refresh.String(), intField(res, "expires_in")); err != nil {
		return nil, fmt.Errorf("failed to store tokens: %w", err)
	}
	if err := sc.Tokens.SetUser(ctx, profileFrom(user)); err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}

	csrfToken, err := sc.CSRF.RegenerateToken(ctx)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, sc.Store); err != nil {
			observability.FromContext(ctx).Warn("failed to reset auth rate limit", slog.String("error", err.Error()))
		}
	}

	observability.FromContext(ctx).Info("user logged in", slog.Any("user_id", user.Get("id").Value()))

	return &LoginResult{
		User:      response.FilterSensitive(user.Value()),
		CSRFToken: csrfToken,
	}, nil
}

// Logout notifies the upstream in the background and always clears the local
// session.
func (s *AuthService) Logout(ctx context.Context, sc SessionContext) error {
	if token := sc.Tokens.AccessToken(ctx); token != "" {
		s.notifyLogout(ctx, token)
	}

	if err := sc.Tokens.ClearTokens(ctx); err != nil {
		return err
	}
	if err := sc.CSRF.ClearToken(ctx); err != nil {
		return err
	}
	return sc.Store.Destroy(ctx)
}

// notifyLogout does not wait for the upstream. The request's token is bound
// now because the session is gone by the time the call runs.
func (s *AuthService) notifyLogout(ctx context.Context, token string) {
	ctx = context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(ctx, s.logoutTimeout)
		defer cancel()

		res := s.upstream.Forward(ctx, nil, upstream.Call{
			Method:   http.MethodPost,
			Endpoint: logoutEndpoint,
			Headers:  map[string]string{"Authorization": "Bearer " + token},
			NoAuth:   true,
		})
		if !res.IsSuccess() {
			observability.FromContext(ctx).Warn("upstream logout failed", slog.Int("status", res.Status))
		}
	}()
}

// Wait blocks until background logout notifications have finished.
func (s *AuthService) Wait() {
	s.pending.Wait()
}

// Me refetches the profile from the upstream. The forwarder has already
// tried a refresh when the reply is 401, so that ends the session.
func (s *AuthService) Me(ctx context.Context, sc SessionContext) (any, error) {
	if !sc.Tokens.IsAuthenticated(ctx) {
		return nil, domain.ErrNotAuthenticated
	}

	res := s.upstream.Forward(ctx, sc.Tokens, upstream.Call{Method: http.MethodGet, Endpoint: meEndpoint})

	switch {
	case res.Status == http.StatusUnauthorized:
		return nil, domain.ErrSessionExpired
	case res.TransportFailed():
		if user := sc.Tokens.User(ctx); user != nil {
			return map[string]any{"user": user}, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, res.Err)
	case res.Status != http.StatusOK:
		return nil, &UpstreamError{
			Status:  res.Status,
			Code:    response.CodeFetchError,
			Message: "Unable to fetch user data",
		}
	}

	if user := res.Field("user"); user.IsObject() {
		if err := sc.Tokens.SetUser(ctx, profileFrom(user)); err != nil {
			return nil, fmt.Errorf("failed to store user: %w", err)
		}
	}

	return response.FilterSensitive(res.Body), nil
}

// Status reports the local authentication state without calling upstream.
func (s *AuthService) Status(ctx context.Context, sc SessionContext) (*StatusResult, error) {
	result := &StatusResult{Authenticated: sc.Tokens.IsAuthenticated(ctx)}
	if result.Authenticated {
		result.User = sc.Tokens.User(ctx)
	}

	token, err := sc.CSRF.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	result.CSRFToken = token
	return result, nil
}

// CSRFToken returns the session's token, generating one if needed.
func (s *AuthService) CSRFToken(ctx context.Context, sc SessionContext) (string, error) {
	return sc.CSRF.GetToken(ctx)
}

// profileFrom reads the fields the session keeps from an upstream user object.
func profileFrom(user gjson.Result) *domain.UserProfile {
	p := &domain.UserProfile{
		ID:          user.Get("id").Value(),
		Email:       user.Get("email").String(),
		Name:        user.Get("name").String(),
		Permissions: []string{},
	}
	for _, perm := range user.Get("permissions").Array() {
		p.Permissions = append(p.Permissions, perm.String())
	}
	return p
}

func stringField(res *upstream.Result, path, fallback string) string {
	if v := res.Field(path); v.Type == gjson.String {
		return v.String()
	}
	return fallback
}

func intField(res *upstream.Result, path string) *int64 {
	v := res.Field(path)
	if v.Type != gjson.Number {
		return nil
	}
	n := v.Int()
	return &n
}
