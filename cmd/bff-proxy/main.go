package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bff-proxy/internal/config"
	"bff-proxy/internal/domain"
	"bff-proxy/internal/handler"
	"bff-proxy/internal/middleware"
	"bff-proxy/internal/observability"
	"bff-proxy/internal/repository/file"
	"bff-proxy/internal/repository/memory"
	"bff-proxy/internal/repository/postgres"
	"bff-proxy/internal/security"
	"bff-proxy/internal/server"
	"bff-proxy/internal/service"
	"bff-proxy/internal/session"
	"bff-proxy/internal/upstream"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting bff proxy",
		slog.String("environment", cfg.Environment),
		slog.String("upstream", cfg.ExternalAPIURL))

	errorRepo, db := openErrorStore(cfg)
	if db != nil {
		defer db.Close()
	}

	sessions := session.NewManager(memory.NewSessionRepository(), session.Options{
		CookieName: cfg.SessionName,
		Lifetime:   cfg.SessionLifetime,
	})

	client := upstream.NewHTTPClient(cfg.ExternalAPITimeout, cfg.SSLVerify)
	var refresherOpts []upstream.RefresherOption
	if cfg.DeduplicateRefresh {
		refresherOpts = append(refresherOpts, upstream.WithDeduplication())
	}
	refresher := upstream.NewRefresher(client, cfg.ExternalAPIURL, cfg.RefreshEndpoint, refresherOpts...)
	fwd := upstream.NewForwarder(cfg.ExternalAPIURL, client, refresher)

	authLimiter := security.NewWindowLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	errorLimiter := middleware.NewRateLimiter(cfg.ErrorLogRate, cfg.ErrorLogBurst)
	defer errorLimiter.Stop()

	authService := service.NewAuthService(fwd, authLimiter)
	proxyService := service.NewProxyService(fwd)
	errorLogService := service.NewErrorLogService(errorRepo)

	router := server.NewRouter(server.Deps{
		Sessions:       sessions,
		AuthLimiter:    authLimiter,
		ErrorLimiter:   errorLimiter,
		Auth:           handler.NewAuthHandler(authService, cfg.DebugMode),
		ErrorLog:       handler.NewErrorLogHandler(errorLogService, cfg.DebugMode),
		Proxy:          handler.NewProxyHandler(proxyService, cfg.MaxUploadMemory, cfg.DebugMode),
		Recorder:       errorLogService,
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: middleware.ParseOrigins(cfg.AllowedOrigins),
		Debug:          cfg.DebugMode,
		OpenAPI: middleware.OpenAPIValidatorConfig{
			Enabled:  cfg.OpenAPIValidation,
			SpecPath: cfg.OpenAPISpecPath,
		},
	})
	admin := server.NewAdminRouter(handler.Ready(client, cfg.ExternalAPIURL, errorRepo))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go startSessionCleanup(ctx, sessions, cfg.SessionCleanupInterval)
	slog.Info("session cleanup task started", slog.Duration("interval", cfg.SessionCleanupInterval))

	srv := newServer(cfg.Port, router, cfg.ExternalAPITimeout)
	adminSrv := newServer(cfg.AdminPort, admin, cfg.ExternalAPITimeout)

	go serve(srv, "bff proxy listening")
	go serve(adminSrv, "admin server listening")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	authService.Wait()

	slog.Info("server stopped gracefully")
}

// openErrorStore picks Postgres when a database URL is configured and the
// JSON file otherwise.
func openErrorStore(cfg *config.Config) (domain.ErrorRepository, *sql.DB) {
	if cfg.ErrorLogDatabaseURL == "" {
		repo, err := file.NewErrorRepository(cfg.ErrorLogFile, cfg.ErrorLogMaxEntries)
		if err != nil {
			slog.Error("failed to open error log file", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("error log stored in file", slog.String("path", cfg.ErrorLogFile))
		return repo, nil
	}

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(connCtx, cfg.ErrorLogDatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := postgres.EnsureErrorSchema(connCtx, db); err != nil {
		db.Close()
		slog.Error("failed to prepare error log schema", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo, err := postgres.NewErrorRepository(db, cfg.ErrorLogMaxEntries)
	if err != nil {
		db.Close()
		slog.Error("failed to create error repository", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("error log stored in postgresql")
	return repo, db
}

// Upstream attempts one proxied request can make: first try, refresh, retry.
const upstreamCallsPerRequest = 3

// newServer bounds the response by the worst-case upstream time plus a margin.
// Only headers get a read deadline so slow uploads are limited by the write
// deadline alone.
func newServer(port string, h http.Handler, upstreamTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      writeTimeout(upstreamTimeout),
		IdleTimeout:       60 * time.Second,
	}
}

func writeTimeout(upstreamTimeout time.Duration) time.Duration {
	return upstreamCallsPerRequest*upstreamTimeout + 15*time.Second
}

func serve(srv *http.Server, msg string) {
	slog.Info(msg, slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// startSessionCleanup removes idle sessions on every tick
func startSessionCleanup(ctx context.Context, sessions *session.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			removed, remaining, err := sessions.Sweep(cleanupCtx)
			if err != nil {
				slog.Error("session cleanup failed", slog.String("error", err.Error()))
			} else {
				observability.ActiveSessions.Set(float64(remaining))
				slog.Info("session cleanup completed",
					slog.Int64("sessions_deleted", removed),
					slog.Int("sessions_remaining", remaining))
			}
			cancel()
		}
	}
}
