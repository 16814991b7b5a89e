// Package service holds the request orchestration behind the HTTP handlers:
// login and session endpoints, generic proxying and the error log.
package service

import (
	"context"
	"fmt"
	"mime/multipart"

	"bff-proxy/internal/auth"
	"bff-proxy/internal/security"
	"bff-proxy/internal/session"
	"bff-proxy/internal/upstream"
)

// Upstream is the forwarding surface the services call.
type Upstream interface {
	Forward(ctx context.Context, creds upstream.Credentials, call upstream.Call) *upstream.Result
	Upload(ctx context.Context, creds upstream.Credentials, call upstream.Call, files map[string][]*multipart.FileHeader) *upstream.Result
}

// UpstreamError is a non-success upstream reply passed through to the client.
type UpstreamError struct {
	Status  int
	Code    string
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d %s: %s", e.Status, e.Code, e.Message)
}

// SessionContext is the caller's session as seen by one request: the raw
// store plus the credential and CSRF views over it.
type SessionContext struct {
	Store  *session.Store
	Tokens *auth.TokenHandler
	CSRF   *security.CSRFGuard
}

func NewSessionContext(st *session.Store) SessionContext {
	return SessionContext{
		Store:  st,
		Tokens: auth.NewTokenHandler(st),
		CSRF:   security.NewCSRFGuard(st),
	}
}
