package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/security"
)

type contextKey struct{}

// Options configures the session cookie.
type Options struct {
	CookieName string
	Lifetime   time.Duration
}

// Manager starts per-request session stores backed by a repository.
type Manager struct {
	repo   domain.SessionRepository
	opts   Options
	tokens *security.TokenManager
	now    func() time.Time
}

func NewManager(repo domain.SessionRepository, opts Options) *Manager {
	return &Manager{
		repo:   repo,
		opts:   opts,
		tokens: security.NewTokenManager(),
		now:    time.Now,
	}
}

// Start loads the caller's session or creates a new one, enforcing the idle
// lifetime. Ids presented by the client that are unknown to the repository
// are never adopted. An idle session is deleted and the returned store
// reports IsExpired.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request) (*Store, error) {
	ctx := r.Context()
	now := m.now()

	st := &Store{mgr: m, w: w, secure: isSecure(r)}

	var existing *domain.Session
	if c, err := r.Cookie(m.opts.CookieName); err == nil && c.Value != "" {
		existing, err = m.repo.Get(ctx, c.Value)
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
	}

	if existing != nil && now.Sub(existing.LastActivityAt) > m.opts.Lifetime {
		if err := m.repo.Delete(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		st.expired = true
		st.expireCookie()
		return st, nil
	}

	if existing == nil {
		if err := st.create(ctx); err != nil {
			return nil, err
		}
		return st, nil
	}

	_, err := m.repo.Update(ctx, existing.ID, func(s *domain.Session) error {
		s.LastActivityAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}

	st.id = existing.ID
	st.setCookie()
	return st, nil
}

// Sweep deletes sessions idle for longer than the lifetime and returns how
// many remain.
func (m *Manager) Sweep(ctx context.Context) (removed int64, remaining int, err error) {
	removed, err = m.repo.DeleteExpired(ctx, m.now().Add(-m.opts.Lifetime))
	if err != nil {
		return 0, 0, err
	}
	remaining, err = m.repo.Count(ctx)
	return removed, remaining, err
}

func (m *Manager) newID() (string, error) {
	id, err := m.tokens.Generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return id, nil
}

// Store is the session of a single request. It is safe for use by the
// goroutines serving that request.
type Store struct {
	mgr    *Manager
	w      http.ResponseWriter
	secure bool

	mu      sync.Mutex
	id      string // empty once destroyed
	expired bool
}

// ID returns the current session id, or "" after Destroy.
func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// IsExpired reports whether Start found this request's session idle past
// its lifetime.
func (s *Store) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Session returns a copy of the stored session. A destroyed store yields an
// empty session.
func (s *Store) Session(ctx context.Context) (*domain.Session, error) {
	id := s.ID()
	if id == "" {
		return &domain.Session{}, nil
	}

	sess, err := s.mgr.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return &domain.Session{}, nil
	}
	return sess, err
}

// Update applies fn to the stored session. Writing to a destroyed store
// starts a new session.
func (s *Store) Update(ctx context.Context, fn func(*domain.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		if err := s.create(ctx); err != nil {
			return err
		}
	}

	_, err := s.mgr.repo.Update(ctx, s.id, fn)
	if errors.Is(err, domain.ErrSessionNotFound) {
		// swept or destroyed by a concurrent request
		if err := s.create(ctx); err != nil {
			return err
		}
		_, err = s.mgr.repo.Update(ctx, s.id, fn)
	}
	return err
}

// Regenerate moves the session to a fresh id and reissues the cookie.
func (s *Store) Regenerate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		return s.create(ctx)
	}

	newID, err := s.mgr.newID()
	if err != nil {
		return err
	}
	if err := s.mgr.repo.Rename(ctx, s.id, newID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return s.create(ctx)
		}
		return fmt.Errorf("failed to regenerate session: %w", err)
	}

	s.id = newID
	s.setCookie()
	return nil
}

// Destroy deletes the session record and expires the cookie.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		return nil
	}
	if err := s.mgr.repo.Delete(ctx, s.id); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	s.id = ""
	s.expireCookie()
	return nil
}

// create must be called with mu held or before the store is shared.
func (s *Store) create(ctx context.Context) error {
	id, err := s.mgr.newID()
	if err != nil {
		return err
	}

	now := s.mgr.now()
	sess := &domain.Session{ID: id, CreatedAt: now, LastActivityAt: now}
	if err := s.mgr.repo.Create(ctx, sess); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	s.id = id
	s.setCookie()
	return nil
}

func (s *Store) setCookie() {
	s.writeCookie(&http.Cookie{
		Name:     s.mgr.opts.CookieName,
		Value:    s.id,
		Path:     "/",
		MaxAge:   int(s.mgr.opts.Lifetime.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Store) expireCookie() {
	s.writeCookie(&http.Cookie{
		Name:     s.mgr.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// writeCookie replaces any session cookie already queued on this response.
func (s *Store) writeCookie(c *http.Cookie) {
	h := s.w.Header()
	prefix := c.Name + "="
	kept := h["Set-Cookie"][:0]
	for _, v := range h["Set-Cookie"] {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	h["Set-Cookie"] = kept
	http.SetCookie(s.w, c)
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// WithStore returns a context carrying st.
func WithStore(ctx context.Context, st *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, st)
}

// FromContext returns the request's store, if the session middleware ran.
func FromContext(ctx context.Context) (*Store, bool) {
	st, ok := ctx.Value(contextKey{}).(*Store)
	return st, ok
}
