// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the proxy.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"bff-proxy/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
)

// MockSessionRepository implements domain.SessionRepository for testing
type MockSessionRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	CreateFunc func(ctx context.Context, session *domain.Session) error
	GetFunc    func(ctx context.Context, id string) (*domain.Session, error)
	UpdateFunc func(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error)
	DeleteFunc func(ctx context.Context, id string) error

	// In-memory storage for simple tests
	Sessions map[string]*domain.Session
}

// NewMockSessionRepository creates a new MockSessionRepository with initialized maps
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		Sessions: make(map[string]*domain.Session),
	}
}

// Put stores s directly, bypassing CreateFunc.
func (m *MockSessionRepository) Put(s *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[s.ID] = s.Clone()
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Sessions[session.ID]; ok {
		return domain.ErrSessionExists
	}
	m.Sessions[session.ID] = session.Clone()
	return nil
}

func (m *MockSessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.Sessions[id]; ok {
		return s.Clone(), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (m *MockSessionRepository) Update(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.Sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	c := s.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	m.Sessions[id] = c
	return c.Clone(), nil
}

func (m *MockSessionRepository) Rename(ctx context.Context, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.Sessions[oldID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if _, taken := m.Sessions[newID]; taken {
		return domain.ErrSessionExists
	}
	delete(m.Sessions, oldID)
	s.ID = newID
	m.Sessions[newID] = s
	return nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Sessions, id)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, idleBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for id, s := range m.Sessions {
		if s.LastActivityAt.Before(idleBefore) {
			delete(m.Sessions, id)
			count++
		}
	}
	return count, nil
}

func (m *MockSessionRepository) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Sessions), nil
}

// MockErrorRepository implements domain.ErrorRepository for testing
type MockErrorRepository struct {
	mu sync.Mutex

	AppendFunc  func(ctx context.Context, entry *domain.ErrorEntry) error
	ListFunc    func(ctx context.Context, filter domain.ErrorFilter) (*domain.ErrorPage, error)
	GetByIDFunc func(ctx context.Context, id string) (*domain.ErrorEntry, error)
	PingFunc    func(ctx context.Context) error

	// Entries holds appended entries, newest last
	Entries []*domain.ErrorEntry
	// LastFilter is the filter passed to the latest List call
	LastFilter domain.ErrorFilter
}

func NewMockErrorRepository() *MockErrorRepository {
	return &MockErrorRepository{}
}

func (m *MockErrorRepository) Append(ctx context.Context, entry *domain.ErrorEntry) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockErrorRepository) List(ctx context.Context, filter domain.ErrorFilter) (*domain.ErrorPage, error) {
	m.mu.Lock()
	m.LastFilter = filter
	m.mu.Unlock()

	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockErrorRepository) GetByID(ctx context.Context, id string) (*domain.ErrorEntry, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, domain.ErrErrorNotFound
}

func (m *MockErrorRepository) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Recorded returns a snapshot of the appended entries.
func (m *MockErrorRepository) Recorded() []*domain.ErrorEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ErrorEntry(nil), m.Entries...)
}
