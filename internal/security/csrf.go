package security

import (
	"bytes"
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"bff-proxy/internal/domain"

	"github.com/tidwall/gjson"
)

const (
	CSRFHeader    = "X-CSRF-Token"
	CSRFFormField = "_csrf_token"

	maxCSRFBodyBytes = 1 << 20
)

var ErrInvalidCSRFToken = errors.New("invalid CSRF token")

// SessionState is the slice of the session store the guards need.
type SessionState interface {
	Session(ctx context.Context) (*domain.Session, error)
	Update(ctx context.Context, fn func(*domain.Session) error) error
}

// CSRFGuard implements the synchronizer token pattern over the session.
type CSRFGuard struct {
	tokens *TokenManager
	store  SessionState
}

func NewCSRFGuard(store SessionState) *CSRFGuard {
	return &CSRFGuard{tokens: NewTokenManager(), store: store}
}

// GenerateToken stores and returns a fresh token, replacing any previous one.
func (g *CSRFGuard) GenerateToken(ctx context.Context) (string, error) {
	token, err := g.tokens.Generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}

	err = g.store.Update(ctx, func(s *domain.Session) error {
		s.CSRFToken = token
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store csrf token: %w", err)
	}
	return token, nil
}

// RegenerateToken rotates the token after login.
func (g *CSRFGuard) RegenerateToken(ctx context.Context) (string, error) {
	return g.GenerateToken(ctx)
}

// GetToken returns the stored token, generating one on first use.
func (g *CSRFGuard) GetToken(ctx context.Context) (string, error) {
	s, err := g.store.Session(ctx)
	if err != nil {
		return "", err
	}
	if s.CSRFToken != "" {
		return s.CSRFToken, nil
	}
	return g.GenerateToken(ctx)
}

// ValidateToken compares candidate with the stored token in constant time.
func (g *CSRFGuard) ValidateToken(ctx context.Context, candidate string) bool {
	if candidate == "" {
		return false
	}

	s, err := g.store.Session(ctx)
	if err != nil || s.CSRFToken == "" {
		return false
	}

	return hmac.Equal([]byte(s.CSRFToken), []byte(candidate))
}

func (g *CSRFGuard) ClearToken(ctx context.Context) error {
	return g.store.Update(ctx, func(s *domain.Session) error {
		s.CSRFToken = ""
		return nil
	})
}

// Protect reports whether r may proceed. Safe methods always pass. A
// state-changing request passes when its path contains any of excluded as a
// substring, or when it carries the session's token.
func (g *CSRFGuard) Protect(r *http.Request, excluded []string) bool {
	if !IsStateChangingRequest(r.Method) {
		return true
	}

	path := requestPath(r)
	for _, e := range excluded {
		if e != "" && strings.Contains(path, e) {
			return true
		}
	}

	return g.ValidateToken(r.Context(), ExtractToken(r))
}

// IsStateChangingRequest is true for POST, PUT, PATCH and DELETE.
func IsStateChangingRequest(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// ExtractToken looks in the X-CSRF-Token header, then the _csrf_token form
// field, then a top-level _csrf_token in a JSON body. A consumed JSON body is
// restored for later readers.
func ExtractToken(r *http.Request) string {
	if token := r.Header.Get(CSRFHeader); token != "" {
		return token
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return r.PostFormValue(CSRFFormField)
	}

	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCSRFBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || !gjson.ValidBytes(body) {
		return ""
	}

	token := gjson.GetBytes(body, CSRFFormField)
	if token.Type != gjson.String {
		return ""
	}
	return token.String()
}

// requestPath is the path as the client sent it, before any prefix rewriting.
func requestPath(r *http.Request) string {
	if r.RequestURI != "" {
		if u, err := url.ParseRequestURI(r.RequestURI); err == nil {
			return u.Path
		}
	}
	return r.URL.Path
}
