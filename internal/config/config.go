package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"flipit-overrides-api/internal/utils"
)

// Config holds all configuration for the application
type Config struct {
	Port                  string
	LogLevel              string
	Environment           string
	BackendBaseURL        string
	BackendTimeout        string
	BackendRateLimitRPS   string
	BackendRateLimitBurst string
	EbayMarketplaceID     string
	CategoryDebounce      string
	SessionTTL            string
	SessionCleanup        string
	RateLimitEnabled      string
	RateLimitPerMinute    string
	MetricsExporter       string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() *Config {
	// This will not override existing environment variables
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with system environment variables only", "error", err)
	} else {
		slog.Info("Successfully loaded .env file")
	}

	config := FromEnv()

	utils.SetupLogging(config.LogLevel, config.Environment)

	slog.Info("Configuration loaded",
		"port", config.Port,
		"environment", config.Environment,
		"logLevel", config.LogLevel,
		"backendBaseURL", config.BackendBaseURL,
		"backendTimeout", config.BackendTimeout,
		"backendRateLimitRPS", config.BackendRateLimitRPS,
		"ebayMarketplaceID", config.EbayMarketplaceID,
		"categoryDebounce", config.CategoryDebounce,
		"sessionTTL", config.SessionTTL,
		"rateLimitEnabled", config.RateLimitEnabled,
		"metricsExporter", config.MetricsExporter)

	return config
}

// FromEnv reads the configuration from the process environment only
func FromEnv() *Config {
	return &Config{
		Port:                  getEnvWithDefault("PORT", "8080"),
		LogLevel:              getEnvWithDefault("LOG_LEVEL", "info"),
		Environment:           getEnvWithDefault("ENVIRONMENT", "development"),
		BackendBaseURL:        strings.TrimRight(getEnvWithDefault("BACKEND_BASE_URL", "http://localhost:8000/api"), "/"),
		BackendTimeout:        getEnvWithDefault("BACKEND_TIMEOUT", "30s"),
		BackendRateLimitRPS:   getEnvWithDefault("BACKEND_RATE_LIMIT_RPS", "20"),
		BackendRateLimitBurst: getEnvWithDefault("BACKEND_RATE_LIMIT_BURST", "40"),
		EbayMarketplaceID:     getEnvWithDefault("EBAY_MARKETPLACE_ID", "EBAY_PL"),
		CategoryDebounce:      getEnvWithDefault("CATEGORY_DEBOUNCE", "500ms"),
		SessionTTL:            getEnvWithDefault("SESSION_TTL", "30m"),
		SessionCleanup:        getEnvWithDefault("SESSION_CLEANUP_INTERVAL", "1m"),
		RateLimitEnabled:      getEnvWithDefault("RATE_LIMIT_ENABLED", "true"),
		RateLimitPerMinute:    getEnvWithDefault("RATE_LIMIT_REQUESTS_PER_MINUTE", "300"),
		MetricsExporter:       getEnvWithDefault("METRICS_EXPORTER", "scraper"),
	}
}

// getEnvWithDefault gets an environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// BackendTimeoutDuration parses BACKEND_TIMEOUT. Zero disables the client timeout.
func (c *Config) BackendTimeoutDuration() time.Duration {
	return parseDuration("BACKEND_TIMEOUT", c.BackendTimeout, 30*time.Second, true)
}

// CategoryDebounceDuration parses CATEGORY_DEBOUNCE
func (c *Config) CategoryDebounceDuration() time.Duration {
	return parseDuration("CATEGORY_DEBOUNCE", c.CategoryDebounce, 500*time.Millisecond, false)
}

// SessionTTLDuration parses SESSION_TTL
func (c *Config) SessionTTLDuration() time.Duration {
	return parseDuration("SESSION_TTL", c.SessionTTL, 30*time.Minute, false)
}

// SessionCleanupInterval parses SESSION_CLEANUP_INTERVAL
func (c *Config) SessionCleanupInterval() time.Duration {
	return parseDuration("SESSION_CLEANUP_INTERVAL", c.SessionCleanup, time.Minute, false)
}

// BackendRateLimit returns the outbound requests per second and burst
func (c *Config) BackendRateLimit() (float64, int) {
	rps, err := strconv.ParseFloat(c.BackendRateLimitRPS, 64)
	if err != nil || rps <= 0 {
		slog.Warn("Invalid backend rate limit, using default", "provided", c.BackendRateLimitRPS, "default", 20)
		rps = 20
	}
	burst := ParseInt(c.BackendRateLimitBurst, 40)
	if burst <= 0 {
		slog.Warn("Invalid backend rate limit burst, using default", "provided", c.BackendRateLimitBurst, "default", 40)
		burst = 40
	}
	return rps, burst
}

// parseDuration parses a duration setting, falling back to the default with a warning
func parseDuration(key, value string, defaultValue time.Duration, allowZero bool) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		slog.Warn("Invalid duration, using default", "key", key, "provided", value, "default", defaultValue.String())
		return defaultValue
	}
	return d
}

// ParseBool parses a string to bool with a default value
func ParseBool(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "1", "yes", "on", "enabled":
		return true
	case "false", "0", "no", "off", "disabled":
		return false
	default:
		slog.Warn("Invalid boolean value, using default",
			"value", value, "default", defaultValue)
		return defaultValue
	}
}

// ParseInt parses a string to int with a default value
func ParseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer value, using default",
			"value", value, "default", defaultValue, "error", err)
		return defaultValue
	}

	return parsed
}
