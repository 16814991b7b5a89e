package memory

import (
	"context"
	"sync"
	"time"

	"bff-proxy/internal/domain"
)

// SessionRepository keeps sessions in process memory. Records are copied on
// the way in and out so no caller ever holds the stored pointer.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// NewSessionRepository creates an empty in-memory session repository
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*domain.Session)}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; ok {
		return domain.ErrSessionExists
	}
	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Update applies fn to a copy of the stored session and commits it only when
// fn succeeds.
func (r *SessionRepository) Update(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	next := s.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	r.sessions[id] = next
	return next.Clone(), nil
}

func (r *SessionRepository) Rename(ctx context.Context, oldID, newID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[oldID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if _, taken := r.sessions[newID]; taken {
		return domain.ErrSessionExists
	}
	delete(r.sessions, oldID)
	s.ID = newID
	r.sessions[newID] = s
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// DeleteExpired removes sessions whose last activity is before idleBefore.
func (r *SessionRepository) DeleteExpired(ctx context.Context, idleBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if s.LastActivityAt.Before(idleBefore) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions), nil
}
