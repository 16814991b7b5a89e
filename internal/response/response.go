// Package response writes the uniform JSON envelope every endpoint returns.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Error codes shared by the handlers.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeServerError      = "SERVER_ERROR"
	CodeAuthFailed       = "AUTH_FAILED"
	CodeCSRF             = "CSRF_ERROR"
	CodeFetchError       = "FETCH_ERROR"
	CodeAPIError         = "API_ERROR"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
)

type successBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorDetail is the error member of a failed envelope.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// Success writes {success:true, data} with status 200.
func Success(w http.ResponseWriter, data any) {
	SuccessWithStatus(w, http.StatusOK, data)
}

func SuccessWithStatus(w http.ResponseWriter, status int, data any) {
	write(w, status, successBody{Success: true, Data: data})
}

// Error writes {success:false, error:{code, message}}.
func Error(w http.ResponseWriter, status int, code, message string) {
	ErrorWithDetails(w, status, code, message, nil)
}

func ErrorWithDetails(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, errorBody{Error: ErrorDetail{Code: code, Message: message, Details: details}})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, CodeValidation, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, CodeForbidden, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, CodeNotFound, message)
}

func MethodNotAllowed(w http.ResponseWriter) {
	Error(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
}

func PayloadTooLarge(w http.ResponseWriter, message string) {
	Error(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

func ServerError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, CodeServerError, message)
}

// InternalError hides err from clients unless debug is set.
func InternalError(w http.ResponseWriter, err error, debug bool) {
	message := "Internal server error"
	if debug && err != nil {
		message = err.Error()
	}
	ServerError(w, message)
}

// SetNoCacheHeaders marks a response as uncacheable.
func SetNoCacheHeaders(h http.Header) {
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
}

func write(w http.ResponseWriter, status int, body any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	SetNoCacheHeaders(h)

	if status == http.StatusNoContent || status == http.StatusNotModified {
		h.Del("Content-Type")
		w.WriteHeader(status)
		return
	}

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

var sensitiveKeys = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"token":         {},
	"password":      {},
	"secret":        {},
	"api_key":       {},
	"private_key":   {},
}

// IsSensitiveKey reports whether key names a credential, ignoring case.
func IsSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// FilterSensitive returns a copy of v with credential keys removed from every
// object at any depth. Values that are not objects or arrays pass through.
func FilterSensitive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				continue
			}
			out[k] = FilterSensitive(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = FilterSensitive(val)
		}
		return out
	default:
		return v
	}
}
