package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port        string
	AdminPort   string
	Environment string // development, staging, production
	LogLevel    string
	LogFormat   string
	DebugMode   bool

	// Upstream API
	ExternalAPIURL     string
	ExternalAPITimeout time.Duration
	RefreshEndpoint    string
	SSLVerify          bool
	DeduplicateRefresh bool

	// Session
	SessionName            string
	SessionLifetime        time.Duration
	SessionCleanupInterval time.Duration

	// Auth endpoint rate limiting (fixed window, per session)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	APIPrefix       string
	AllowedOrigins  string
	MaxUploadMemory int64

	// Error log storage
	ErrorLogFile        string
	ErrorLogMaxEntries  int
	ErrorLogDatabaseURL string
	ErrorLogRate        float64
	ErrorLogBurst       int

	OpenAPIValidation bool
	OpenAPISpecPath   string
}

// Load loads configuration from environment variables and validates it
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := FromEnv()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

// FromEnv reads the configuration without validating it.
func FromEnv() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		AdminPort:   getEnv("ADMIN_PORT", "9090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		DebugMode:   getEnvBool("DEBUG_MODE", false),

		ExternalAPIURL:     getEnv("EXTERNAL_API_URL", ""),
		ExternalAPITimeout: getEnvSeconds("EXTERNAL_API_TIMEOUT", 30),
		RefreshEndpoint:    getEnv("REFRESH_ENDPOINT", "/auth/refresh"),
		SSLVerify:          getEnvBool("SSL_VERIFY", true),
		DeduplicateRefresh: getEnvBool("DEDUPLICATE_REFRESH", false),

		SessionName:            getEnv("SESSION_NAME", "myapp_session"),
		SessionLifetime:        getEnvSeconds("SESSION_LIFETIME", 3600),
		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvSeconds("RATE_LIMIT_WINDOW", 60),

		APIPrefix:       getEnv("API_PREFIX", "/api"),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		MaxUploadMemory: int64(getEnvInt("MAX_UPLOAD_MEMORY", 32<<20)),

		ErrorLogFile:        getEnv("ERROR_LOG_FILE", "./data/errors.json"),
		ErrorLogMaxEntries:  getEnvInt("ERROR_LOG_MAX_ENTRIES", 1000),
		ErrorLogDatabaseURL: getEnv("ERROR_LOG_DATABASE_URL", ""),
		ErrorLogRate:        getEnvFloat("ERROR_LOG_RATE", 5),
		ErrorLogBurst:       getEnvInt("ERROR_LOG_BURST", 20),

		OpenAPIValidation: getEnvBool("OPENAPI_VALIDATION", false),
		OpenAPISpecPath:   getEnv("OPENAPI_SPEC_PATH", "api/openapi.yaml"),
	}
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	if c.ExternalAPIURL == "" {
		return fmt.Errorf("EXTERNAL_API_URL is required")
	}

	u, err := url.Parse(c.ExternalAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("EXTERNAL_API_URL must be an absolute URL (got %q)", c.ExternalAPIURL)
	}

	if c.ExternalAPITimeout <= 0 {
		return fmt.Errorf("EXTERNAL_API_TIMEOUT must be positive")
	}

	if c.SessionLifetime <= 0 {
		return fmt.Errorf("SESSION_LIFETIME must be positive")
	}

	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}

	if c.ErrorLogMaxEntries <= 0 {
		return fmt.Errorf("ERROR_LOG_MAX_ENTRIES must be positive")
	}

	if c.IsProduction() {
		if !c.SSLVerify {
			return fmt.Errorf("SSL_VERIFY cannot be disabled in production")
		}

		if c.DebugMode {
			log.Println("WARNING: DEBUG_MODE exposes internal error messages to clients")
		}

		if u.Scheme != "https" {
			log.Println("WARNING: EXTERNAL_API_URL does not use HTTPS in production")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Invalid number for %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return f
}

// getEnvBool accepts the usual truthy spellings; anything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid duration for %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
