package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/repository/memory"
	"bff-proxy/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T) (*TokenHandler, *session.Store) {
	t.Helper()
	mgr := session.NewManager(memory.NewSessionRepository(), session.Options{CookieName: "sid", Lifetime: time.Hour})
	st, err := mgr.Start(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	return NewTokenHandler(st), st
}

func int64Ptr(v int64) *int64 { return &v }

func TestTokenHandler_RoundTrip(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	tokens := []struct{ access, refresh string }{
		{"aaa", "bbb"},
		{"eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.abc+def/ghi=", "r-e_f+r/e=sh=="},
		{"a+b/c=d-e_f", "----____"},
	}

	for _, tt := range tokens {
		require.NoError(t, h.SetTokens(ctx, tt.access, tt.refresh, nil))
		assert.Equal(t, tt.access, h.AccessToken(ctx))
		assert.Equal(t, tt.refresh, h.RefreshToken(ctx))
	}
}

func TestTokenHandler_SetTokensRotatesSessionID(t *testing.T) {
	ctx := context.Background()
	h, st := newHandler(t)
	before := st.ID()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	require.NoError(t, h.SetTokens(ctx, "aaa", "bbb", int64Ptr(3600)))

	assert.NotEqual(t, before, st.ID())
	assert.Equal(t, now.Add(time.Hour), h.TokenExpiresAt(ctx))
}

func TestTokenHandler_UpdateTokens(t *testing.T) {
	ctx := context.Background()
	h, st := newHandler(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	require.NoError(t, h.SetTokens(ctx, "aaa", "bbb", int64Ptr(60)))
	id := st.ID()

	t.Run("keeps_refresh_and_expiry_when_absent", func(t *testing.T) {
		require.NoError(t, h.UpdateTokens(ctx, "ccc", "", nil))
		assert.Equal(t, "ccc", h.AccessToken(ctx))
		assert.Equal(t, "bbb", h.RefreshToken(ctx))
		assert.Equal(t, now.Add(time.Minute), h.TokenExpiresAt(ctx))
	})

	t.Run("replaces_rotated_refresh_and_expiry", func(t *testing.T) {
		require.NoError(t, h.UpdateTokens(ctx, "ddd", "eee", int64Ptr(120)))
		assert.Equal(t, "ddd", h.AccessToken(ctx))
		assert.Equal(t, "eee", h.RefreshToken(ctx))
		assert.Equal(t, now.Add(2*time.Minute), h.TokenExpiresAt(ctx))
	})

	t.Run("does_not_rotate_session_id", func(t *testing.T) {
		assert.Equal(t, id, st.ID())
	})
}

func TestTokenHandler_IsAuthenticatedNeedsTokenAndUser(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	assert.False(t, h.IsAuthenticated(ctx))

	require.NoError(t, h.SetTokens(ctx, "aaa", "bbb", nil))
	assert.False(t, h.IsAuthenticated(ctx), "token without user")

	require.NoError(t, h.SetUser(ctx, &domain.UserProfile{ID: 1, Permissions: []string{"user"}}))
	assert.True(t, h.IsAuthenticated(ctx))

	// expiry is advisory
	h.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	require.NoError(t, h.UpdateTokens(ctx, "aaa", "", int64Ptr(1)))
	h.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	assert.True(t, h.IsAuthenticated(ctx))
	assert.False(t, h.HasValidAccessToken(ctx))
}

func TestTokenHandler_HasValidAccessToken(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	assert.False(t, h.HasValidAccessToken(ctx))

	require.NoError(t, h.SetTokens(ctx, "aaa", "", nil))
	assert.True(t, h.HasValidAccessToken(ctx), "unknown expiry counts as valid")
	assert.False(t, h.HasRefreshToken(ctx))

	require.NoError(t, h.SetTokens(ctx, "aaa", "bbb", int64Ptr(10)))
	assert.True(t, h.HasValidAccessToken(ctx))
	assert.True(t, h.HasRefreshToken(ctx))

	now = now.Add(10 * time.Second)
	assert.False(t, h.HasValidAccessToken(ctx))
}

func TestTokenHandler_ClearTokens(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	require.NoError(t, h.SetTokens(ctx, "aaa", "bbb", int64Ptr(60)))
	require.NoError(t, h.SetUser(ctx, &domain.UserProfile{ID: 1}))
	require.NoError(t, h.ClearTokens(ctx))

	assert.Empty(t, h.AccessToken(ctx))
	assert.Empty(t, h.RefreshToken(ctx))
	assert.True(t, h.TokenExpiresAt(ctx).IsZero())
	assert.Nil(t, h.User(ctx))
	assert.False(t, h.IsAuthenticated(ctx))
}

func TestTokenHandler_SetUserCopiesProfile(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t)

	u := &domain.UserProfile{ID: 7, Email: "a@b.com", Permissions: []string{"user"}}
	require.NoError(t, h.SetUser(ctx, u))
	u.Permissions[0] = "admin"

	assert.Equal(t, []string{"user"}, h.User(ctx).Permissions)
}

func TestTokenHandler_Destroy(t *testing.T) {
	ctx := context.Background()
	h, st := newHandler(t)
	require.NoError(t, h.SetTokens(ctx, "aaa", "bbb", nil))

	require.NoError(t, h.Destroy(ctx))
	assert.Empty(t, st.ID())
	assert.Empty(t, h.AccessToken(ctx))
}
