// Package fakeupstream is an in-memory stand-in for the upstream API: bearer
// token auth with rotating refresh tokens and a small menu resource. It backs
// the development binary and the HTTP tests.
package fakeupstream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// User is an account the fake upstream accepts.
type User struct {
	ID          int      `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Password    string   `json:"-"`
	Permissions []string `json:"permissions"`
}

// MenuItem is the sample resource served under /menu.
type MenuItem struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Stats counts calls to the credential endpoints.
type Stats struct {
	Logins    int
	Refreshes int
	Logouts   int
}

type Option func(*Server)

// WithUsers replaces the default account list.
func WithUsers(users ...User) Option {
	return func(s *Server) {
		s.users = make(map[string]User, len(users))
		for _, u := range users {
			s.users[u.Email] = u
		}
	}
}

// WithTokenTTL sets the expires_in reported for access tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) { s.ttl = ttl }
}

type Server struct {
	mu      sync.Mutex
	users   map[string]User
	ttl     time.Duration
	access  map[string]string // access token -> email
	refresh map[string]string // refresh token -> email
	menu    []MenuItem
	stats   Stats
}

func New(opts ...Option) *Server {
	s := &Server{
		users: map[string]User{
			"demo@example.com": {ID: 1, Email: "demo@example.com", Name: "Demo User", Password: "demo", Permissions: []string{"user"}},
		},
		ttl:     time.Hour,
		access:  make(map[string]string),
		refresh: make(map[string]string),
		menu: []MenuItem{
			{ID: 1, Name: "Miso soup", Price: 4.5},
			{ID: 2, Name: "Gyoza", Price: 6},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the upstream's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.login)
		r.Post("/refresh", s.refreshTokens)
		r.Get("/me", s.authenticated(s.me))
		r.Post("/logout", s.authenticated(s.logout))
	})

	r.Get("/menu", s.authenticated(s.listMenu))
	r.Post("/menu", s.authenticated(s.createMenuItem))
	r.Post("/uploads", s.authenticated(s.upload))

	return r
}

// ExpireAccessTokens revokes every access token while keeping refresh
// tokens valid, forcing the next authenticated call through a refresh.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]string)
}

// RevokeAll drops every access and refresh token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]string)
	s.refresh = make(map[string]string)
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Logins++

	user, ok := s.users[req.Email]
	if !ok || user.Password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}

	access, refresh := s.issueLocked(user.Email)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    int(s.ttl.Seconds()),
		"user":          user,
	})
}

// refreshTokens rotates the refresh token on every use.
func (s *Server) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Refreshes++

	email, ok := s.refresh[req.RefreshToken]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
		return
	}
	delete(s.refresh, req.RefreshToken)

	access, refresh := s.issueLocked(email)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    int(s.ttl.Seconds()),
	})
}

func (s *Server) issueLocked(email string) (access, refresh string) {
	access = "at-" + uuid.NewString()
	refresh = "rt-" + uuid.NewString()
	s.access[access] = email
	s.refresh[refresh] = email
	return access, refresh
}

type userHandler func(w http.ResponseWriter, r *http.Request, user User)

func (s *Server) authenticated(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		email, valid := s.access[token]
		user := s.users[email]
		s.mu.Unlock()

		if !ok || !valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "TOKEN_EXPIRED", "message": "Unauthorized"})
			return
		}
		next(w, r, user)
	}
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, user User) {
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request, user User) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	s.stats.Logouts++
	delete(s.access, token)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) listMenu(w http.ResponseWriter, r *http.Request, user User) {
	s.mu.Lock()
	items := append([]MenuItem(nil), s.menu...)
	s.mu.Unlock()

	if q := r.URL.Query().Get("q"); q != "" {
		filtered := items[:0]
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Name), strings.ToLower(q)) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) createMenuItem(w http.ResponseWriter, r *http.Request, user User) {
	var item MenuItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil || item.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"code": "INVALID_ITEM", "message": "Item name is required"})
		return
	}

	s.mu.Lock()
	item.ID = len(s.menu) + 1
	s.menu = append(s.menu, item)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

// upload lists the received files and fields.
func (s *Server) upload(w http.ResponseWriter, r *http.Request, user User) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Expected multipart body"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := map[string]string{}
	for field, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			files[field] = fh.Filename + " (" + strconv.FormatInt(fh.Size, 10) + " bytes)"
		}
	}
	fields := map[string]string{}
	for name, values := range r.MultipartForm.Value {
		fields[name] = strings.Join(values, ",")
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": files, "fields": fields})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", slog.String("error", err.Error()))
	}
}
