package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"bff-proxy/internal/domain"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Ready reports whether the upstream answers HTTP and the error store is
// usable. Both are checked in parallel.
func Ready(client *http.Client, upstreamURL string, errorStore domain.ErrorRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		upstreamResult := make(chan HealthCheckResult, 1)
		storeResult := make(chan HealthCheckResult, 1)

		go func() {
			upstreamResult <- checkUpstream(ctx, client, upstreamURL)
		}()

		go func() {
			storeResult <- checkErrorStore(ctx, errorStore)
		}()

		upstreamCheck := <-upstreamResult
		storeCheck := <-storeResult

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks": map[string]HealthCheckResult{
				"upstream":    upstreamCheck,
				"error_store": storeCheck,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		if upstreamCheck.Status == "up" && storeCheck.Status == "up" {
			response["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}

// checkUpstream counts any HTTP answer, whatever its status, as up.
func checkUpstream(ctx context.Context, client *http.Client, upstreamURL string) HealthCheckResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, upstreamURL, nil)
	if err != nil {
		return HealthCheckResult{Status: "down", Error: err.Error()}
	}

	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}
	resp.Body.Close()

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]any{
			"status_code": resp.StatusCode,
		},
	}
}

// checkErrorStore verifies the error log backend
func checkErrorStore(ctx context.Context, store domain.ErrorRepository) HealthCheckResult {
	start := time.Now()
	err := store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
	}
}
