package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Environment:        "development",
		ExternalAPIURL:     "https://api.example.com",
		ExternalAPITimeout: 30 * time.Second,
		SessionLifetime:    time.Hour,
		RateLimitRequests:  100,
		RateLimitWindow:    time.Minute,
		ErrorLogMaxEntries: 1000,
		SSLVerify:          true,
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		expected    bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			if got := cfg.IsProduction(); got != tt.expected {
				t.Errorf("IsProduction() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		expected    bool
	}{
		{"development", "development", true},
		{"dev", "dev", true},
		{"empty", "", true},
		{"production", "production", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			if got := cfg.IsDevelopment(); got != tt.expected {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		wantError     bool
		errorContains string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:          "missing_upstream",
			mutate:        func(c *Config) { c.ExternalAPIURL = "" },
			wantError:     true,
			errorContains: "EXTERNAL_API_URL is required",
		},
		{
			name:          "relative_upstream",
			mutate:        func(c *Config) { c.ExternalAPIURL = "/api" },
			wantError:     true,
			errorContains: "absolute URL",
		},
		{
			name:          "zero_timeout",
			mutate:        func(c *Config) { c.ExternalAPITimeout = 0 },
			wantError:     true,
			errorContains: "EXTERNAL_API_TIMEOUT",
		},
		{
			name:          "zero_rate_limit",
			mutate:        func(c *Config) { c.RateLimitRequests = 0 },
			wantError:     true,
			errorContains: "RATE_LIMIT_REQUESTS",
		},
		{
			name:   "ssl_verify_off_in_development",
			mutate: func(c *Config) { c.SSLVerify = false },
		},
		{
			name: "ssl_verify_off_in_production",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.SSLVerify = false
			},
			wantError:     true,
			errorContains: "SSL_VERIFY",
		},
		{
			name: "debug_in_production_only_warns",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.DebugMode = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				} else if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error containing %q, got %q", tt.errorContains, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("EXTERNAL_API_URL", "http://localhost:4000")

	cfg := FromEnv()

	if cfg.ExternalAPITimeout != 30*time.Second {
		t.Errorf("ExternalAPITimeout = %v, want 30s", cfg.ExternalAPITimeout)
	}
	if cfg.SessionLifetime != time.Hour {
		t.Errorf("SessionLifetime = %v, want 1h", cfg.SessionLifetime)
	}
	if cfg.SessionName != "myapp_session" {
		t.Errorf("SessionName = %q, want myapp_session", cfg.SessionName)
	}
	if cfg.RateLimitRequests != 100 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d/%v, want 100/1m", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if !cfg.SSLVerify {
		t.Error("SSLVerify should default to true")
	}
	if cfg.DebugMode {
		t.Error("DebugMode should default to false")
	}
	if cfg.RefreshEndpoint != "/auth/refresh" {
		t.Errorf("RefreshEndpoint = %q", cfg.RefreshEndpoint)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("EXTERNAL_API_URL", "http://localhost:4000")
	t.Setenv("EXTERNAL_API_TIMEOUT", "5")
	t.Setenv("SESSION_LIFETIME", "120")
	t.Setenv("SSL_VERIFY", "false")
	t.Setenv("DEBUG_MODE", "true")
	t.Setenv("SESSION_CLEANUP_INTERVAL", "30s")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")

	cfg := FromEnv()

	if cfg.ExternalAPITimeout != 5*time.Second {
		t.Errorf("ExternalAPITimeout = %v, want 5s", cfg.ExternalAPITimeout)
	}
	if cfg.SessionLifetime != 2*time.Minute {
		t.Errorf("SessionLifetime = %v, want 2m", cfg.SessionLifetime)
	}
	if cfg.SSLVerify {
		t.Error("SSLVerify should be false")
	}
	if !cfg.DebugMode {
		t.Error("DebugMode should be true")
	}
	if cfg.SessionCleanupInterval != 30*time.Second {
		t.Errorf("SessionCleanupInterval = %v, want 30s", cfg.SessionCleanupInterval)
	}
	if cfg.RateLimitRequests != 100 {
		t.Errorf("invalid integer should fall back to default, got %d", cfg.RateLimitRequests)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		expected     string
	}{
		{"env_set", "BFF_TEST_KEY", "default", "custom", "custom"},
		{"env_not_set", "BFF_TEST_KEY_NOT_SET", "default", "", "default"},
		{"empty_default", "BFF_TEST_KEY_EMPTY", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.expected {
				t.Errorf("getEnv() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		expected bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"false", true, false},
		{"0", true, false},
		{"garbage", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("BFF_TEST_BOOL", tt.value)
			if got := getEnvBool("BFF_TEST_BOOL", tt.fallback); got != tt.expected {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.fallback, got, tt.expected)
			}
		})
	}
}
