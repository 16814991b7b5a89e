package upstream

import (
	"bytes"
	"context"
	"mime/multipart"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCreds struct {
	mu        sync.Mutex
	access    string
	refresh   string
	expiresIn *int64
	cleared   bool
	destroyed bool
}

func (c *fakeCreds) AccessToken(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access
}

func (c *fakeCreds) RefreshToken(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh
}

func (c *fakeCreds) UpdateTokens(ctx context.Context, access, refresh string, expiresIn *int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = access
	if refresh != "" {
		c.refresh = refresh
	}
	if expiresIn != nil {
		c.expiresIn = expiresIn
	}
	return nil
}

func (c *fakeCreds) ClearTokens(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access, c.refresh, c.expiresIn = "", "", nil
	c.cleared = true
	return nil
}

func (c *fakeCreds) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
	return nil
}

// countingRefresher records calls and delegates to fn.
type countingRefresher struct {
	mu        sync.Mutex
	refreshes int
	failures  int
	fn        func(ctx context.Context, creds Credentials) bool
}

func (r *countingRefresher) Refresh(ctx context.Context, creds Credentials) bool {
	r.mu.Lock()
	r.refreshes++
	r.mu.Unlock()
	return r.fn(ctx, creds)
}

func (r *countingRefresher) HandleFailedRefresh(ctx context.Context, creds Credentials) {
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()
	_ = creds.ClearTokens(ctx)
	_ = creds.Destroy(ctx)
}

// formFiles builds parsed multipart file headers the way net/http would.
func formFiles(t *testing.T, files map[string][]string) map[string][]*multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, contents := range files {
		for i, content := range contents {
			name := field + "-" + string(rune('a'+i)) + ".txt"
			w, err := mw.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = w.Write([]byte(content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	// Callers add nil and empty headers; keep those out of the parsed form
	// so RemoveAll only sees what ReadForm created.
	out := make(map[string][]*multipart.FileHeader, len(form.File))
	for field, fhs := range form.File {
		out[field] = append([]*multipart.FileHeader(nil), fhs...)
	}
	return out
}
