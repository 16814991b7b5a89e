package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"bff-proxy/internal/observability"
	"bff-proxy/internal/response"
)

// ErrorRecorder stores failures raised inside the proxy.
type ErrorRecorder interface {
	RecordServerError(ctx context.Context, message, stack string, errCtx map[string]any) (string, error)
}

// Recover is the outermost catch-all. A panic becomes the 500 envelope, with
// the panic value as message only in debug mode, and is written to the error
// log when recorder is set.
func Recover(debugMode bool, recorder ErrorRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				ctx := r.Context()
				stack := string(debug.Stack())
				message := fmt.Sprint(rec)

				observability.FromContext(ctx).Error("panic recovered",
					slog.String("panic", message),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)

				if recorder != nil {
					errCtx := map[string]any{
						"url":       r.URL.RequestURI(),
						"userAgent": r.UserAgent(),
						"extra":     map[string]any{"panic": message, "method": r.Method},
					}
					if _, err := recorder.RecordServerError(context.WithoutCancel(ctx), message, stack, errCtx); err != nil {
						observability.FromContext(ctx).Error("failed to record panic", slog.String("error", err.Error()))
					}
				}

				response.InternalError(w, errors.New(message), debugMode)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
