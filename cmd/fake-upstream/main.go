package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bff-proxy/internal/fakeupstream"
	"bff-proxy/internal/observability"
)

// fake-upstream serves a small token-issuing API for local development
// against the proxy.
func main() {
	observability.InitLogger(getEnv("LOG_LEVEL", "debug"), getEnv("LOG_FORMAT", "text"))

	port := getEnv("FAKE_UPSTREAM_PORT", "8000")
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      fakeupstream.New().Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		slog.Info("fake upstream listening", slog.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
