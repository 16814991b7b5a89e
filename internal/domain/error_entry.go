package domain

import (
	"context"
	"errors"
	"time"
)

var ErrErrorNotFound = errors.New("error entry not found")

// Error log types and severities accepted from clients.
var (
	ErrorTypes      = []string{"javascript", "api", "manual", "server"}
	ErrorSeverities = []string{"error", "warning", "info"}
)

const (
	DefaultErrorPageSize = 20
	MaxErrorPageSize     = 100
)

// ErrorEntry is a client or server reported error.
type ErrorEntry struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	Stack      *string        `json:"stack"`
	Context    map[string]any `json:"context"`
	Timestamp  string         `json:"timestamp"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// OccurredAt is the parsed client timestamp, falling back to ReceivedAt.
func (e *ErrorEntry) OccurredAt() time.Time {
	if t, ok := ParseTimestamp(e.Timestamp); ok {
		return t
	}
	return e.ReceivedAt
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the common date-only and naive forms.
// Naive values are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ErrorFilter selects and paginates error entries. Zero times are unbounded.
type ErrorFilter struct {
	Type     string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// Normalize clamps pagination to valid bounds.
func (f ErrorFilter) Normalize() ErrorFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		if f.PageSize == 0 {
			f.PageSize = DefaultErrorPageSize
		} else {
			f.PageSize = 1
		}
	}
	if f.PageSize > MaxErrorPageSize {
		f.PageSize = MaxErrorPageSize
	}
	return f
}

// Offset is the zero-based index of the first entry on the page.
func (f ErrorFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Matches reports whether e passes the type and inclusive date bounds.
func (f ErrorFilter) Matches(e *ErrorEntry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	at := e.OccurredAt()
	if !f.From.IsZero() && at.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && at.After(f.To) {
		return false
	}
	return true
}

// ErrorPage is one page of error entries, newest first.
type ErrorPage struct {
	Errors   []*ErrorEntry `json:"errors"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// ErrorRepository stores error entries, evicting the oldest beyond its cap.
type ErrorRepository interface {
	Append(ctx context.Context, entry *ErrorEntry) error
	List(ctx context.Context, filter ErrorFilter) (*ErrorPage, error)
	GetByID(ctx context.Context, id string) (*ErrorEntry, error)
	Ping(ctx context.Context) error
}
