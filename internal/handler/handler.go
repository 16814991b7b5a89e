// Package handler contains the HTTP handlers behind the proxy's own
// endpoints. Handlers translate service results and errors into the JSON
// envelope.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/observability"
	"bff-proxy/internal/response"
	"bff-proxy/internal/service"
	"bff-proxy/internal/session"
)

// sessionContext builds the service view of the request's session. The
// session middleware always runs first, so a miss is a wiring fault.
func sessionContext(w http.ResponseWriter, r *http.Request) (service.SessionContext, bool) {
	st, ok := session.FromContext(r.Context())
	if !ok {
		observability.FromContext(r.Context()).Error("no session in request context")
		response.ServerError(w, "Internal server error")
		return service.SessionContext{}, false
	}
	return service.NewSessionContext(st), true
}

// writeError covers the errors every handler shares: client input and
// passed-through upstream replies. Anything else is an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error, debug bool) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		response.BadRequest(w, validationErr.Message)
		return
	}

	var upstreamErr *service.UpstreamError
	if errors.As(err, &upstreamErr) {
		response.Error(w, upstreamErr.Status, upstreamErr.Code, upstreamErr.Message)
		return
	}

	observability.FromContext(r.Context()).Error("request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	response.InternalError(w, err, debug)
}
