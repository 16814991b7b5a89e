// Package server assembles the proxy's HTTP routers.
package server

import (
	"net/http"

	"bff-proxy/internal/handler"
	"bff-proxy/internal/middleware"
	"bff-proxy/internal/response"
	"bff-proxy/internal/security"
	"bff-proxy/internal/session"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// loginPath is never CSRF checked: the browser has no token before login.
const loginPath = "/auth/login"

// Deps is everything the public router needs.
type Deps struct {
	Sessions       *session.Manager
	AuthLimiter    *security.WindowLimiter
	ErrorLimiter   *middleware.RateLimiter
	Auth           *handler.AuthHandler
	ErrorLog       *handler.ErrorLogHandler
	Proxy          *handler.ProxyHandler
	Recorder       middleware.ErrorRecorder
	APIPrefix      string
	AllowedOrigins []string
	Debug          bool
	OpenAPI        middleware.OpenAPIValidatorConfig
}

// NewRouter builds the public router. Every request gets a session; a
// session found idle past its lifetime is refused before routing. The auth
// and error log families are served locally and everything else is
// forwarded upstream.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recover(d.Debug, d.Recorder))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(d.AllowedOrigins))
	r.Use(middleware.Session(d.Sessions))
	r.Use(middleware.StripPrefix(d.APIPrefix))
	r.Use(middleware.ReleaseUploads)

	validate := middleware.OpenAPIValidator(d.OpenAPI)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.AuthRateLimit(d.AuthLimiter))
		r.Use(validate)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, "Auth endpoint not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			response.MethodNotAllowed(w)
		})

		r.Post("/login", d.Auth.Login)
		r.With(middleware.CSRF(loginPath)).Post("/logout", d.Auth.Logout)
		r.With(middleware.RequireAuth).Get("/me", d.Auth.Me)
		r.Get("/status", d.Auth.Status)
		r.Get("/csrf", d.Auth.CSRF)
	})

	r.Route("/errors", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, "Error endpoint not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			response.MethodNotAllowed(w)
		})

		r.With(d.ErrorLimiter.Middleware(), validate).Post("/", d.ErrorLog.Create)
		r.With(middleware.RequireAdmin, validate).Get("/", d.ErrorLog.List)
		r.With(middleware.RequireAdmin, validate).Get("/{id}", d.ErrorLog.Get)
	})

	r.With(middleware.CSRF(loginPath), middleware.RequireAuth).Handle("/*", d.Proxy)

	return r
}

// NewAdminRouter serves health and metrics on the admin listener.
func NewAdminRouter(ready http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", handler.Health)
	r.Get("/health/ready", ready)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
