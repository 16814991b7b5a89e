package security

import (
	"context"
	"sync"

	"bff-proxy/internal/domain"
)

// memState is a SessionState over a single in-memory session.
type memState struct {
	mu sync.Mutex
	s  domain.Session
}

func (m *memState) Session(ctx context.Context) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Clone(), nil
}

func (m *memState) Update(ctx context.Context, fn func(*domain.Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.s.Clone()
	if err := fn(next); err != nil {
		return err
	}
	m.s = *next
	return nil
}
