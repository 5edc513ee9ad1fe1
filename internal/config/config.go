// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Shared stores
	RedisAddr     string // Redis address (optional, uses in-memory stores if not set)
	RedisPassword string
	RedisDB       int
	DatabaseURL   string // PostgreSQL connection string for the decision audit trail (optional)

	// External risk scorer
	ScorerURL     string // Base URL of the behavioral scoring service
	ScorerTimeout time.Duration

	// Sentinel timing
	SessionTTL      time.Duration // Sliding expiry for sentinel sessions
	MFAAbsoluteTTL  time.Duration // Ceiling set at verification time
	MFAIdleTTL      time.Duration // Idle window applied after each ALLOW
	ChallengeTTL    time.Duration // Defensive expiry on pending challenges
	BreakerTrips    int           // Consecutive scorer failures before the circuit opens
	BreakerOpenFor  time.Duration // How long the circuit stays open before probing
	ForwardAttempts int           // Max delivery attempts when forwarding telemetry batches

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)

	// Ingress protection
	RateLimitRPM int
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultScorerTimeout   = 3 * time.Second
	DefaultSessionTTL      = 30 * time.Minute
	DefaultMFAAbsoluteTTL  = 12 * time.Hour
	DefaultMFAIdleTTL      = 30 * time.Minute
	DefaultChallengeTTL    = 5 * time.Minute
	DefaultBreakerTrips    = 5
	DefaultBreakerOpenFor  = 30 * time.Second
	DefaultForwardAttempts = 3
	DefaultRateLimit       = 300
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		RedisAddr:       os.Getenv("REDIS_ADDR"), // Optional, uses in-memory if not set
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         int(getEnvInt64("REDIS_DB", 0)),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ScorerURL:       os.Getenv("SCORER_URL"),
		ScorerTimeout:   getEnvDuration("SCORER_TIMEOUT", DefaultScorerTimeout),
		SessionTTL:      getEnvDuration("SESSION_TTL", DefaultSessionTTL),
		MFAAbsoluteTTL:  getEnvDuration("MFA_ABSOLUTE_TTL", DefaultMFAAbsoluteTTL),
		MFAIdleTTL:      getEnvDuration("MFA_IDLE_TTL", DefaultMFAIdleTTL),
		ChallengeTTL:    getEnvDuration("CHALLENGE_TTL", DefaultChallengeTTL),
		BreakerTrips:    int(getEnvInt64("BREAKER_TRIPS", DefaultBreakerTrips)),
		BreakerOpenFor:  getEnvDuration("BREAKER_OPEN_FOR", DefaultBreakerOpenFor),
		ForwardAttempts: int(getEnvInt64("FORWARD_ATTEMPTS", DefaultForwardAttempts)),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:    int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ScorerURL == "" && c.IsProduction() {
		return fmt.Errorf("SCORER_URL is required in production")
	}
	if c.ScorerURL != "" {
		if _, err := url.ParseRequestURI(c.ScorerURL); err != nil {
			return fmt.Errorf("SCORER_URL is not a valid URL: %w", err)
		}
	}

	if c.MFAIdleTTL > c.MFAAbsoluteTTL {
		return fmt.Errorf("MFA_IDLE_TTL (%s) must not exceed MFA_ABSOLUTE_TTL (%s)", c.MFAIdleTTL, c.MFAAbsoluteTTL)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the env var value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt64 returns the env var as int64 or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns the env var as a duration or a default.
// Accepts Go duration strings ("30m") or bare seconds ("1800").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
