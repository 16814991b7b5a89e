package security

import (
	"context"
	"time"

	"bff-proxy/internal/domain"
)

// LimitInfo describes the current window for response headers and logs.
type LimitInfo struct {
	Limit          int `json:"limit"`
	Remaining      int `json:"remaining"`
	ResetInSeconds int `json:"reset_in"`
}

// WindowLimiter is a fixed-window counter stored in the caller's session.
type WindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{limit: limit, window: window, now: time.Now}
}

// Check counts one request and reports whether it is within the limit. A
// request that starts a new window always passes.
func (l *WindowLimiter) Check(ctx context.Context, store SessionState) (bool, error) {
	allowed := false
	err := store.Update(ctx, func(s *domain.Session) error {
		now := l.now()
		w := &s.RateLimit

		if w.WindowStart.IsZero() || now.Sub(w.WindowStart) >= l.window {
			w.WindowStart = now
			w.Count = 1
			allowed = true
			return nil
		}

		if w.Count >= l.limit {
			return nil
		}

		w.Count++
		allowed = true
		return nil
	})
	return allowed, err
}

func (l *WindowLimiter) Reset(ctx context.Context, store SessionState) error {
	return store.Update(ctx, func(s *domain.Session) error {
		s.RateLimit = domain.RateLimitWindow{}
		return nil
	})
}

func (l *WindowLimiter) Info(ctx context.Context, store SessionState) (LimitInfo, error) {
	s, err := store.Session(ctx)
	if err != nil {
		return LimitInfo{}, err
	}

	info := LimitInfo{Limit: l.limit, Remaining: l.limit}
	w := s.RateLimit
	if w.WindowStart.IsZero() {
		return info, nil
	}

	elapsed := l.now().Sub(w.WindowStart)
	if elapsed < l.window {
		info.Remaining = max(0, l.limit-w.Count)
	}

	resetIn := (l.window - elapsed + time.Second - 1) / time.Second
	info.ResetInSeconds = max(0, int(resetIn))
	return info, nil
}
