package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotAuthenticated        = errors.New("not authenticated")
	ErrSessionExpired          = errors.New("session expired")
	ErrUpstreamUnavailable     = errors.New("upstream unavailable")
	ErrInvalidUpstreamResponse = errors.New("invalid upstream response")
	ErrNoPermissions           = errors.New("no permissions assigned to user")
)

// ValidationError reports rejected client input.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewMissingFieldsError builds the error for absent required fields.
func NewMissingFieldsError(fields ...string) *ValidationError {
	return &ValidationError{
		Fields:  fields,
		Message: "Missing required fields: " + strings.Join(fields, ", "),
	}
}
