package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"bff-proxy/internal/domain"

	"github.com/gofrs/flock"
)

const (
	lockTimeout       = 5 * time.Second
	lockRetryInterval = 50 * time.Millisecond
)

// ErrorRepository stores error entries as a JSON array, newest first, in a
// single file. A sibling .lock file serialises writers across processes.
type ErrorRepository struct {
	path       string
	maxEntries int
	mu         sync.Mutex
}

// NewErrorRepository creates the parent directory and returns the repository.
func NewErrorRepository(path string, maxEntries int) (*ErrorRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create error log directory: %w", err)
	}
	return &ErrorRepository{path: path, maxEntries: maxEntries}, nil
}

// Append inserts entry at the front and trims the oldest beyond the cap.
func (r *ErrorRepository) Append(ctx context.Context, entry *domain.ErrorEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.withLock(ctx, false, func() error {
		entries, err := r.read()
		if err != nil {
			return err
		}

		entries = append([]*domain.ErrorEntry{entry}, entries...)
		if len(entries) > r.maxEntries {
			entries = entries[:r.maxEntries]
		}

		return r.write(entries)
	})
}

func (r *ErrorRepository) List(ctx context.Context, filter domain.ErrorFilter) (*domain.ErrorPage, error) {
	filter = filter.Normalize()

	var entries []*domain.ErrorEntry
	err := r.withLock(ctx, true, func() error {
		var err error
		entries, err = r.read()
		return err
	})
	if err != nil {
		return nil, err
	}

	matched := make([]*domain.ErrorEntry, 0, len(entries))
	for _, e := range entries {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt().After(matched[j].OccurredAt())
	})

	page := &domain.ErrorPage{
		Errors:   []*domain.ErrorEntry{},
		Total:    len(matched),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}

	start := filter.Offset()
	if start < len(matched) {
		end := start + filter.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		page.Errors = matched[start:end]
	}

	return page, nil
}

func (r *ErrorRepository) GetByID(ctx context.Context, id string) (*domain.ErrorEntry, error) {
	var entries []*domain.ErrorEntry
	err := r.withLock(ctx, true, func() error {
		var err error
		entries, err = r.read()
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, domain.ErrErrorNotFound
}

// Ping checks that the log directory is still writable.
func (r *ErrorRepository) Ping(ctx context.Context) error {
	return r.withLock(ctx, true, func() error { return nil })
}

func (r *ErrorRepository) withLock(ctx context.Context, shared bool, fn func() error) error {
	fileLock := flock.New(r.path + ".lock")
	defer fileLock.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = fileLock.TryRLockContext(lockCtx, lockRetryInterval)
	} else {
		locked, err = fileLock.TryLockContext(lockCtx, lockRetryInterval)
	}
	if err != nil {
		return fmt.Errorf("failed to acquire error log lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("could not acquire error log lock: timeout after %v", lockTimeout)
	}

	return fn()
}

// read returns an empty slice when the file does not exist yet.
func (r *ErrorRepository) read() ([]*domain.ErrorEntry, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return []*domain.ErrorEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read error log: %w", err)
	}
	if len(data) == 0 {
		return []*domain.ErrorEntry{}, nil
	}

	var entries []*domain.ErrorEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode error log: %w", err)
	}
	return entries, nil
}

// write replaces the file through a rename so readers never see a partial array.
func (r *ErrorRepository) write(entries []*domain.ErrorEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode error log: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("failed to write error log: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace error log: %w", err)
	}
	return nil
}
