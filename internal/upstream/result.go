package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// StatusTransportFailure is the Result status when no HTTP response arrived.
const StatusTransportFailure = 0

// Result is the outcome of one upstream call. Body is the decoded JSON value,
// the raw text when the payload is not JSON, or nil when it is empty.
type Result struct {
	Status  int
	Body    any
	Headers map[string]string
	Err     error

	raw []byte
}

func transportFailure(err error) *Result {
	return &Result{Status: StatusTransportFailure, Headers: map[string]string{}, Err: err}
}

func readResult(resp *http.Response) *Result {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportFailure(fmt.Errorf("failed to read upstream response: %w", err))
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}

	return &Result{
		Status:  resp.StatusCode,
		Body:    parseBody(raw),
		Headers: headers,
		raw:     raw,
	}
}

func parseBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		return string(raw)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	return v
}

// TransportFailed reports whether the call never got an HTTP response.
func (r *Result) TransportFailed() bool {
	return r.Status == StatusTransportFailure
}

// IsSuccess is true for 2xx statuses.
func (r *Result) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// Field reads a value from the JSON body by gjson path.
func (r *Result) Field(path string) gjson.Result {
	return gjson.GetBytes(r.raw, path)
}

// Decode unmarshals the raw JSON body into v.
func (r *Result) Decode(v any) error {
	return json.Unmarshal(r.raw, v)
}

// Raw returns the undecoded payload.
func (r *Result) Raw() []byte {
	return r.raw
}
