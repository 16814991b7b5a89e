package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/observability"
	"bff-proxy/internal/response"
	"bff-proxy/internal/service"

	"github.com/tidwall/gjson"
)

const maxJSONBody = 10 << 20

// ProxyHandler forwards every path the proxy does not serve itself.
type ProxyHandler struct {
	proxy     *service.ProxyService
	maxMemory int64
	maxBody   int64
	debug     bool
}

func NewProxyHandler(proxy *service.ProxyService, maxMemory int64, debug bool) *ProxyHandler {
	return &ProxyHandler{proxy: proxy, maxMemory: maxMemory, maxBody: maxJSONBody, debug: debug}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionContext(w, r)
	if !ok {
		return
	}

	req := service.ProxyRequest{
		Method:   r.Method,
		Endpoint: r.URL.Path,
	}
	if r.URL.RawQuery != "" {
		req.Endpoint += "?" + r.URL.RawQuery
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxMemory); err != nil {
			response.BadRequest(w, "Invalid multipart body")
			return
		}
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				observability.FromContext(r.Context()).Warn("failed to remove upload temp files", slog.String("error", err.Error()))
			}
		}()

		req.Files = r.MultipartForm.File
		req.Form = formValues(r.MultipartForm.Value)
		if len(req.Files) == 0 {
			req.Body = req.Form
		}
	} else if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.PayloadTooLarge(w, "Request body too large")
				return
			}
			response.BadRequest(w, "Unable to read request body")
			return
		}
		// Non-JSON bodies are not forwarded.
		if gjson.ValidBytes(body) {
			req.Body = json.RawMessage(body)
		}
	}

	res, err := h.proxy.Forward(r.Context(), sc.Tokens, req)
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			response.ServerError(w, "Unable to connect to API service")
			return
		}
		writeError(w, r, err, h.debug)
		return
	}

	response.SuccessWithStatus(w, res.Status, res.Body)
}

// formValues sends single values as strings and repeated ones as lists.
func formValues(values map[string][]string) map[string]any {
	form := make(map[string]any, len(values))
	for name, v := range values {
		if len(v) == 1 {
			form[name] = v[0]
			continue
		}
		form[name] = v
	}
	return form
}
