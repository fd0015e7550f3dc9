package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Rate limit strategies accepted by RATE_LIMIT_STRATEGY.
const (
	RateLimitSliding = "sliding"
	RateLimitFixed   = "fixed"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	// FrameAncestors lists sites allowed to embed calculator widgets; defaults to the CORS origins.
	FrameAncestors   []string
	MaxBodyBytes     int64
	QuoteTokenSecret string
	QuoteTokenTTL    time.Duration
	QuoteTokenIssuer string
	ConfigCacheTTL   time.Duration

	RateLimitWindow   time.Duration
	RateLimitMax      int
	RateLimitStrategy string

	QuoteTasksEnabled  bool
	QuoteTasksQueue    string
	QuoteTasksMaxRetry int

	StoreBreakerMinRequests  int
	StoreBreakerFailureRatio float64
	StoreBreakerOpenFor      time.Duration

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		FrameAncestors:     splitAndTrim(k.String("FRAME_ANCESTORS")),
		MaxBodyBytes:       int64(parseInt(k.String("MAX_BODY_BYTES"), 256<<10)),
		QuoteTokenSecret:   k.String("QUOTE_TOKEN_SECRET"),
		QuoteTokenTTL:      parseDuration(k.String("QUOTE_TOKEN_TTL"), "30m"),
		QuoteTokenIssuer:   valueOrDefault(k.String("QUOTE_TOKEN_ISSUER"), "quote-engine"),
		ConfigCacheTTL:     parseDuration(k.String("CONFIG_CACHE_TTL"), "5m"),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:       parseInt(k.String("RATE_LIMIT_MAX"), 120),
		RateLimitStrategy:  strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), RateLimitSliding)),
		QuoteTasksEnabled:  parseBool(k.String("QUOTE_TASKS_ENABLED")),
		QuoteTasksQueue:    valueOrDefault(k.String("QUOTE_TASKS_QUEUE"), "quotes"),
		QuoteTasksMaxRetry: parseInt(k.String("QUOTE_TASKS_MAX_RETRY"), 5),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),

		StoreBreakerMinRequests:  parseInt(k.String("STORE_BREAKER_MIN_REQUESTS"), 10),
		StoreBreakerFailureRatio: parseRatio(k.String("STORE_BREAKER_FAILURE_RATIO"), 0.5),
		StoreBreakerOpenFor:      parseDuration(k.String("STORE_BREAKER_OPEN_FOR"), "10s"),
	}
	if len(cfg.FrameAncestors) == 0 {
		cfg.FrameAncestors = cfg.CORSAllowedOrigins
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.QuoteTokenSecret == "" {
		return nil, errors.New("QUOTE_TOKEN_SECRET is required")
	}
	if len(cfg.QuoteTokenSecret) < 32 {
		return nil, errors.New("QUOTE_TOKEN_SECRET must be at least 32 bytes")
	}
	switch cfg.RateLimitStrategy {
	case RateLimitSliding, RateLimitFixed:
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STRATEGY must be %q or %q", RateLimitSliding, RateLimitFixed)
	}
	if cfg.QuoteTasksEnabled && cfg.RedisURL == "" {
		return nil, errors.New("QUOTE_TASKS_ENABLED requires REDIS_URL")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// RedisEnabled reports whether a Redis URL was supplied. Without Redis the config
// cache, rate limiting and quote hand-off are all off.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func parseRatio(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed <= 0 || parsed > 1 {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
