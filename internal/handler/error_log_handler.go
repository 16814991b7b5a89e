package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/response"
	"bff-proxy/internal/service"

	"github.com/go-chi/chi/v5"
)

// ErrorLogHandler serves the client error log.
type ErrorLogHandler struct {
	errorLog *service.ErrorLogService
	debug    bool
}

func NewErrorLogHandler(errorLog *service.ErrorLogService, debug bool) *ErrorLogHandler {
	return &ErrorLogHandler{errorLog: errorLog, debug: debug}
}

// Create handles POST /errors
func (h *ErrorLogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input map[string]any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input == nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	id, err := h.errorLog.Log(r.Context(), input)
	if err != nil {
		writeError(w, r, err, h.debug)
		return
	}

	response.SuccessWithStatus(w, http.StatusCreated, map[string]string{"id": id})
}

// List handles GET /errors?type&dateFrom&dateTo&page&pageSize
func (h *ErrorLogHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := h.errorLog.List(r.Context(), service.ErrorQuery{
		Type:     q.Get("type"),
		DateFrom: q.Get("dateFrom"),
		DateTo:   q.Get("dateTo"),
		Page:     positiveParam(q.Get("page")),
		PageSize: positiveParam(q.Get("pageSize")),
	})
	if err != nil {
		writeError(w, r, err, h.debug)
		return
	}

	response.Success(w, page)
}

// Get handles GET /errors/{id}
func (h *ErrorLogHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.errorLog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrErrorNotFound) {
			response.NotFound(w, "Error not found")
			return
		}
		writeError(w, r, err, h.debug)
		return
	}

	response.Success(w, entry)
}

// positiveParam returns 0 for an absent value and at least 1 otherwise,
// so unparsable numbers select the first page or smallest page size.
func positiveParam(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
