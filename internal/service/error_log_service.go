package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/observability"

	"github.com/google/uuid"
)

// ErrorQuery is the raw filter of GET /errors. Zero Page and PageSize select
// the defaults.
type ErrorQuery struct {
	Type     string
	DateFrom string
	DateTo   string
	Page     int
	PageSize int
}

type ErrorLogService struct {
	repo  domain.ErrorRepository
	now   func() time.Time
	newID func() string
}

func NewErrorLogService(repo domain.ErrorRepository) *ErrorLogService {
	return &ErrorLogService{
		repo:  repo,
		now:   time.Now,
		newID: newErrorID,
	}
}

func newErrorID() string {
	return "err_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Log validates a client-reported error and stores it, returning its id.
func (s *ErrorLogService) Log(ctx context.Context, input map[string]any) (string, error) {
	if err := validateErrorInput(input); err != nil {
		return "", err
	}

	now := s.now()
	entry := &domain.ErrorEntry{
		ID:         s.newID(),
		Type:       input["type"].(string),
		Severity:   "error",
		Message:    input["message"].(string),
		Context:    input["context"].(map[string]any),
		Timestamp:  now.Format(time.RFC3339),
		ReceivedAt: now.UTC(),
	}
	if sev, ok := input["severity"].(string); ok {
		entry.Severity = sev
	}
	if stack, ok := input["stack"].(string); ok {
		entry.Stack = &stack
	}
	if ts, ok := input["timestamp"].(string); ok && ts != "" {
		entry.Timestamp = ts
	}

	return entry.ID, s.append(ctx, entry)
}

// RecordServerError stores a failure raised inside the proxy itself.
func (s *ErrorLogService) RecordServerError(ctx context.Context, message, stack string, errCtx map[string]any) (string, error) {
	now := s.now()
	entry := &domain.ErrorEntry{
		ID:         s.newID(),
		Type:       "server",
		Severity:   "error",
		Message:    message,
		Context:    errCtx,
		Timestamp:  now.Format(time.RFC3339),
		ReceivedAt: now.UTC(),
	}
	if stack != "" {
		entry.Stack = &stack
	}
	return entry.ID, s.append(ctx, entry)
}

func (s *ErrorLogService) append(ctx context.Context, entry *domain.ErrorEntry) error {
	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to store error entry: %w", err)
	}

	observability.ErrorLogEntriesTotal.WithLabelValues(entry.Type).Inc()
	observability.FromContext(ctx).Info("error entry recorded",
		slog.String("error_id", entry.ID),
		slog.String("type", entry.Type),
		slog.String("severity", entry.Severity),
	)
	return nil
}

// List returns one page of entries, newest first. A date-only DateTo covers
// the whole day.
func (s *ErrorLogService) List(ctx context.Context, q ErrorQuery) (*domain.ErrorPage, error) {
	filter := domain.ErrorFilter{Type: q.Type, Page: q.Page, PageSize: q.PageSize}

	if q.DateFrom != "" {
		from, ok := domain.ParseTimestamp(q.DateFrom)
		if !ok {
			return nil, &domain.ValidationError{Fields: []string{"dateFrom"}, Message: "Invalid dateFrom"}
		}
		filter.From = from
	}
	if q.DateTo != "" {
		to, ok := domain.ParseTimestamp(q.DateTo)
		if !ok {
			return nil, &domain.ValidationError{Fields: []string{"dateTo"}, Message: "Invalid dateTo"}
		}
		if isDateOnly(q.DateTo) {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		filter.To = to
	}

	return s.repo.List(ctx, filter.Normalize())
}

func (s *ErrorLogService) Get(ctx context.Context, id string) (*domain.ErrorEntry, error) {
	return s.repo.GetByID(ctx, id)
}

func isDateOnly(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

func validateErrorInput(input map[string]any) error {
	var missing []string
	for _, field := range []string{"type", "message", "context"} {
		if isBlank(input[field]) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return domain.NewMissingFieldsError(missing...)
	}

	if t, ok := input["type"].(string); !ok || !slices.Contains(domain.ErrorTypes, t) {
		return &domain.ValidationError{
			Fields:  []string{"type"},
			Message: "Invalid type. Must be one of: " + strings.Join(domain.ErrorTypes, ", "),
		}
	}

	if sev, present := input["severity"]; present && sev != nil {
		if s, ok := sev.(string); !ok || !slices.Contains(domain.ErrorSeverities, s) {
			return &domain.ValidationError{
				Fields:  []string{"severity"},
				Message: "Invalid severity. Must be one of: " + strings.Join(domain.ErrorSeverities, ", "),
			}
		}
	}

	if _, ok := input["message"].(string); !ok {
		return &domain.ValidationError{Fields: []string{"message"}, Message: "Message must be a string"}
	}

	errCtx, ok := input["context"].(map[string]any)
	if !ok {
		return &domain.ValidationError{Fields: []string{"context"}, Message: "Context must be an object"}
	}
	for _, field := range []string{"url", "userAgent"} {
		if isBlank(errCtx[field]) {
			return &domain.ValidationError{
				Fields:  []string{"context." + field},
				Message: "Missing required context field: " + field,
			}
		}
	}
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
