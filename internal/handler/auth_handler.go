package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/response"
	"bff-proxy/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	debug       bool
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *service.AuthService, debug bool) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		debug:       debug,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login. An unreadable body is treated as missing
// credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionContext(w, r)
	if !ok {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = LoginRequest{}
	}

	result, err := h.authService.Login(r.Context(), sc, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUpstreamUnavailable):
			response.ServerError(w, "Unable to connect to authentication service")
		case errors.Is(err, domain.ErrInvalidUpstreamResponse):
			response.ServerError(w, "Invalid response from authentication service")
		case errors.Is(err, domain.ErrNoPermissions):
			response.Error(w, http.StatusUnauthorized, response.CodeAuthFailed, "No permissions assigned to user")
		default:
			writeError(w, r, err, h.debug)
		}
		return
	}

	response.Success(w, result)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionContext(w, r)
	if !ok {
		return
	}

	if err := h.authService.Logout(r.Context(), sc); err != nil {
		writeError(w, r, err, h.debug)
		return
	}

	response.Success(w, map[string]string{"message": "Logged out successfully"})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionContext(w, r)
	if !ok {
		return
	}

	body, err := h.authService.Me(r.Context(), sc)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotAuthenticated):
			response.Unauthorized(w, "Not authenticated")
		case errors.Is(err, domain.ErrSessionExpired):
			response.Unauthorized(w, "Session expired")
		case errors.Is(err, domain.ErrUpstreamUnavailable):
			response.ServerError(w, "Unable to fetch user data")
		default:
			writeError(w, r, err, h.debug)
		}
		return
	}

	response.Success(w, body)
}

// Status handles GET /auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionContext(w, r)
	if !ok {
		return
	}

	status, err := h.authService.Status(r.Context(), sc)
	if err != nil {
		writeError(w, r, err, h.debug)
		return
	}

	response.Success(w, status)
}

// CSRF handles GET /auth/csrf
func (h *AuthHandler) CSRF(w http.ResponseWriter, r *http.Request) {
	sc, ok := sessionContext(w, r)
	if !ok {
		return
	}

	token, err := h.authService.CSRFToken(r.Context(), sc)
	if err != nil {
		writeError(w, r, err, h.debug)
		return
	}

	response.Success(w, map[string]string{"csrf_token": token})
}
