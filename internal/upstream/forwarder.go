package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"bff-proxy/internal/observability"
)

// CredentialRefresher is consulted when the upstream rejects a token.
type CredentialRefresher interface {
	Refresh(ctx context.Context, creds Credentials) bool
	HandleFailedRefresh(ctx context.Context, creds Credentials)
}

// Call describes one logical upstream request.
type Call struct {
	Method   string
	Endpoint string // relative to the base URL, or absolute
	Body     any
	Headers  map[string]string
	NoAuth   bool
}

type CallOption func(*Call)

// WithHeaders adds or overrides request headers.
func WithHeaders(headers map[string]string) CallOption {
	return func(c *Call) {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			c.Headers[k] = v
		}
	}
}

// WithoutAuth sends the call without a bearer token and disables the
// refresh-and-retry step.
func WithoutAuth() CallOption {
	return func(c *Call) { c.NoAuth = true }
}

// attempt distinguishes the original send from the single retry after a
// refresh. Only a firstAttempt may trigger a refresh.
type attempt int

const (
	firstAttempt attempt = iota
	retryAttempt
)

func (a attempt) String() string {
	if a == retryAttempt {
		return "retry"
	}
	return "first"
}

// requestBuilder creates a fresh request for each attempt so bodies can be
// replayed.
type requestBuilder func(ctx context.Context, accessToken string) (*http.Request, error)

// Forwarder sends calls to the upstream with the session's bearer token. A
// 401 on an authenticated call triggers one refresh and exactly one retry.
// It holds no per-call state and is safe for concurrent use.
type Forwarder struct {
	baseURL   string
	client    *http.Client
	refresher CredentialRefresher
}

func NewForwarder(baseURL string, client *http.Client, refresher CredentialRefresher) *Forwarder {
	return &Forwarder{baseURL: baseURL, client: client, refresher: refresher}
}

// Forward executes call. creds may be nil for calls made WithoutAuth.
// Transport failures come back as a Result with status 0, never as an error.
func (f *Forwarder) Forward(ctx context.Context, creds Credentials, call Call) *Result {
	if call.Method == "" {
		call.Method = http.MethodGet
	}
	call.Method = strings.ToUpper(call.Method)
	url := BuildURL(f.baseURL, call.Endpoint)

	build := func(ctx context.Context, accessToken string) (*http.Request, error) {
		var body *bytes.Reader
		if carriesBody(call.Method) && !isEmptyBody(call.Body) {
			payload, err := encodeBody(call.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
			body = bytes.NewReader(payload)
		}

		var req *http.Request
		var err error
		if body != nil {
			req, err = http.NewRequestWithContext(ctx, call.Method, url, body)
		} else {
			req, err = http.NewRequestWithContext(ctx, call.Method, url, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		applyAuthAndHeaders(req, accessToken, call.Headers)
		return req, nil
	}

	return f.send(ctx, creds, call, build, firstAttempt)
}

func (f *Forwarder) Get(ctx context.Context, creds Credentials, endpoint string, opts ...CallOption) *Result {
	return f.Forward(ctx, creds, newCall(http.MethodGet, endpoint, nil, opts))
}

func (f *Forwarder) Post(ctx context.Context, creds Credentials, endpoint string, body any, opts ...CallOption) *Result {
	return f.Forward(ctx, creds, newCall(http.MethodPost, endpoint, body, opts))
}

func (f *Forwarder) Put(ctx context.Context, creds Credentials, endpoint string, body any, opts ...CallOption) *Result {
	return f.Forward(ctx, creds, newCall(http.MethodPut, endpoint, body, opts))
}

func (f *Forwarder) Patch(ctx context.Context, creds Credentials, endpoint string, body any, opts ...CallOption) *Result {
	return f.Forward(ctx, creds, newCall(http.MethodPatch, endpoint, body, opts))
}

func (f *Forwarder) Delete(ctx context.Context, creds Credentials, endpoint string, body any, opts ...CallOption) *Result {
	return f.Forward(ctx, creds, newCall(http.MethodDelete, endpoint, body, opts))
}

func newCall(method, endpoint string, body any, opts []CallOption) Call {
	c := Call{Method: method, Endpoint: endpoint, Body: body}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// send runs one attempt and, for an authenticated first attempt rejected with
// 401, the refresh-and-retry step. The retry's result is final whatever its
// status. A failed or impossible refresh ends the session and surfaces the
// original 401.
func (f *Forwarder) send(ctx context.Context, creds Credentials, call Call, build requestBuilder, att attempt) *Result {
	withAuth := !call.NoAuth && creds != nil
	result := f.execute(ctx, creds, call, build, att, withAuth)

	if result.Status != http.StatusUnauthorized || !withAuth || att == retryAttempt || f.refresher == nil {
		return result
	}

	if creds.RefreshToken(ctx) == "" {
		f.refresher.HandleFailedRefresh(ctx, creds)
		return result
	}

	if !f.refresher.Refresh(ctx, creds) {
		f.refresher.HandleFailedRefresh(ctx, creds)
		return result
	}

	return f.send(ctx, creds, call, build, retryAttempt)
}

func (f *Forwarder) execute(ctx context.Context, creds Credentials, call Call, build requestBuilder, att attempt, withAuth bool) *Result {
	log := observability.FromContext(ctx).With(
		slog.String("method", call.Method),
		slog.String("endpoint", endpointPath(call.Endpoint)),
		slog.String("attempt", att.String()),
	)

	accessToken := ""
	if withAuth {
		accessToken = creds.AccessToken(ctx)
	}

	req, err := build(ctx, accessToken)
	if err != nil {
		log.Error("failed to build upstream request", slog.String("error", err.Error()))
		return transportFailure(err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		observability.UpstreamRequestDuration.WithLabelValues(call.Method, "0", att.String()).Observe(time.Since(start).Seconds())
		log.Warn("upstream request failed", slog.String("error", err.Error()))
		return transportFailure(err)
	}
	defer resp.Body.Close()

	result := readResult(resp)
	observability.UpstreamRequestDuration.WithLabelValues(call.Method, strconv.Itoa(result.Status), att.String()).Observe(time.Since(start).Seconds())
	log.Debug("upstream request completed", slog.Int("status", result.Status))
	return result
}

func applyAuthAndHeaders(req *http.Request, accessToken string, headers map[string]string) {
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func carriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// encodeBody sends raw JSON as-is and marshals everything else.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	}
	return json.Marshal(body)
}

// isEmptyBody treats nil, empty strings and empty maps or slices as no body.
func isEmptyBody(body any) bool {
	if body == nil {
		return true
	}
	switch b := body.(type) {
	case json.RawMessage:
		return len(bytes.TrimSpace(b)) == 0
	case []byte:
		return len(b) == 0
	case string:
		return b == ""
	}

	v := reflect.ValueOf(body)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// endpointPath drops the query string, which may carry identifiers, from logs.
func endpointPath(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
