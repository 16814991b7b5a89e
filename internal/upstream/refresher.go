package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/observability"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

// Credentials is the session-backed token store a call runs with.
type Credentials interface {
	AccessToken(ctx context.Context) string
	RefreshToken(ctx context.Context) string
	UpdateTokens(ctx context.Context, access, refresh string, expiresIn *int64) error
	ClearTokens(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// TokenSet is what the upstream returns from a successful refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string // empty when the upstream does not rotate it
	ExpiresIn    *int64
}

// Refresher exchanges a refresh token for a new access token.
type Refresher struct {
	client   *http.Client
	endpoint string
	group    *singleflight.Group
}

type RefresherOption func(*Refresher)

// WithDeduplication collapses concurrent refreshes that present the same
// refresh token into a single upstream call. Without it every caller that saw
// a 401 refreshes on its own.
func WithDeduplication() RefresherOption {
	return func(r *Refresher) {
		r.group = &singleflight.Group{}
	}
}

// NewRefresher builds a refresher posting to endpoint, resolved against baseURL.
func NewRefresher(client *http.Client, baseURL, endpoint string, opts ...RefresherOption) *Refresher {
	r := &Refresher{client: client, endpoint: BuildURL(baseURL, endpoint)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh swaps the stored refresh token for new credentials and reports
// whether it succeeded. It never clears the session itself.
func (r *Refresher) Refresh(ctx context.Context, creds Credentials) bool {
	log := observability.FromContext(ctx)

	refreshToken := creds.RefreshToken(ctx)
	if refreshToken == "" {
		observability.TokenRefreshTotal.WithLabelValues("no_token").Inc()
		return false
	}

	tokens, err := r.exchangeOnce(ctx, refreshToken)
	if err != nil {
		observability.TokenRefreshTotal.WithLabelValues("failure").Inc()
		log.Warn("token refresh failed", slog.String("error", err.Error()))
		return false
	}

	if err := creds.UpdateTokens(ctx, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresIn); err != nil {
		observability.TokenRefreshTotal.WithLabelValues("failure").Inc()
		log.Error("failed to store refreshed tokens", slog.String("error", err.Error()))
		return false
	}

	observability.TokenRefreshTotal.WithLabelValues("success").Inc()
	log.Debug("token refreshed")
	return true
}

// HandleFailedRefresh clears the credentials and ends the session.
func (r *Refresher) HandleFailedRefresh(ctx context.Context, creds Credentials) {
	log := observability.FromContext(ctx)

	if err := creds.ClearTokens(ctx); err != nil {
		log.Error("failed to clear tokens", slog.String("error", err.Error()))
	}
	if err := creds.Destroy(ctx); err != nil {
		log.Error("failed to destroy session", slog.String("error", err.Error()))
	}
}

func (r *Refresher) exchangeOnce(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if r.group == nil {
		return r.exchange(ctx, refreshToken)
	}

	// the shared call must not fail because the first caller went away
	v, err, _ := r.group.Do(refreshToken, func() (any, error) {
		return r.exchange(context.WithoutCancel(ctx), refreshToken)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenSet), nil
}

func (r *Refresher) exchange(ctx context.Context, refreshToken string) (*TokenSet, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	result := readResult(resp)
	if result.TransportFailed() {
		return nil, result.Err
	}
	if result.Status != http.StatusOK {
		return nil, fmt.Errorf("refresh rejected with status %d", result.Status)
	}

	access := result.Field("access_token")
	if access.Type != gjson.String || access.String() == "" {
		return nil, fmt.Errorf("%w: missing access_token", domain.ErrInvalidUpstreamResponse)
	}

	tokens := &TokenSet{AccessToken: access.String()}
	if rt := result.Field("refresh_token"); rt.Type == gjson.String {
		tokens.RefreshToken = rt.String()
	}
	if exp := result.Field("expires_in"); exp.Type == gjson.Number {
		n := exp.Int()
		tokens.ExpiresIn = &n
	}
	return tokens, nil
}
