package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func baseEnv() map[string]string {
	return map[string]string{
		"APP_ENV":               "",
		"PORT":                  "",
		"DATABASE_URL":          "postgres://quotes@localhost:5432/quotes?sslmode=disable",
		"REDIS_URL":             "",
		"CORS_ALLOWED_ORIGINS":  "",
		"FRAME_ANCESTORS":       "",
		"MAX_BODY_BYTES":        "",
		"QUOTE_TOKEN_SECRET":    testSecret,
		"QUOTE_TOKEN_TTL":       "",
		"QUOTE_TOKEN_ISSUER":    "",
		"CONFIG_CACHE_TTL":      "",
		"RATE_LIMIT_WINDOW":     "",
		"RATE_LIMIT_MAX":        "",
		"RATE_LIMIT_STRATEGY":   "",
		"QUOTE_TASKS_ENABLED":   "",
		"QUOTE_TASKS_QUEUE":     "",
		"QUOTE_TASKS_MAX_RETRY": "",
		"SHUTDOWN_TIMEOUT":      "",

		"STORE_BREAKER_MIN_REQUESTS":  "",
		"STORE_BREAKER_FAILURE_RATIO": "",
		"STORE_BREAKER_OPEN_FOR":      "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 30*time.Minute, cfg.QuoteTokenTTL)
	require.Equal(t, "quote-engine", cfg.QuoteTokenIssuer)
	require.Equal(t, 5*time.Minute, cfg.ConfigCacheTTL)
	require.Equal(t, time.Minute, cfg.RateLimitWindow)
	require.Equal(t, 120, cfg.RateLimitMax)
	require.Equal(t, RateLimitSliding, cfg.RateLimitStrategy)
	require.Equal(t, "quotes", cfg.QuoteTasksQueue)
	require.Equal(t, 5, cfg.QuoteTasksMaxRetry)
	require.Equal(t, int64(256<<10), cfg.MaxBodyBytes)
	require.False(t, cfg.QuoteTasksEnabled)
	require.False(t, cfg.RedisEnabled())
	require.Equal(t, 10, cfg.StoreBreakerMinRequests)
	require.Equal(t, 0.5, cfg.StoreBreakerFailureRatio)
	require.Equal(t, 10*time.Second, cfg.StoreBreakerOpenFor)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = ":9090"
	env["REDIS_URL"] = "redis://localhost:6379/0"
	env["CORS_ALLOWED_ORIGINS"] = "https://shop.example.com, https://wash.example.org"
	env["QUOTE_TOKEN_TTL"] = "10m"
	env["CONFIG_CACHE_TTL"] = "garbage"
	env["RATE_LIMIT_MAX"] = "30"
	env["RATE_LIMIT_STRATEGY"] = "FIXED"
	env["QUOTE_TASKS_ENABLED"] = "true"
	env["QUOTE_TASKS_MAX_RETRY"] = "-1"
	env["STORE_BREAKER_FAILURE_RATIO"] = "1.5"
	env["STORE_BREAKER_OPEN_FOR"] = "30s"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.True(t, cfg.RedisEnabled())
	require.Equal(t, []string{"https://shop.example.com", "https://wash.example.org"}, cfg.CORSAllowedOrigins)
	require.Equal(t, cfg.CORSAllowedOrigins, cfg.FrameAncestors)
	require.Equal(t, 10*time.Minute, cfg.QuoteTokenTTL)
	require.Equal(t, 5*time.Minute, cfg.ConfigCacheTTL)
	require.Equal(t, 30, cfg.RateLimitMax)
	require.Equal(t, RateLimitFixed, cfg.RateLimitStrategy)
	require.True(t, cfg.QuoteTasksEnabled)
	require.Equal(t, 5, cfg.QuoteTasksMaxRetry)
	require.Equal(t, 0.5, cfg.StoreBreakerFailureRatio)
	require.Equal(t, 30*time.Second, cfg.StoreBreakerOpenFor)
}

func TestLoadRejectsInvalidEnvironments(t *testing.T) {
	cases := map[string]func(map[string]string){
		"missing database": func(env map[string]string) { env["DATABASE_URL"] = "" },
		"missing secret":   func(env map[string]string) { env["QUOTE_TOKEN_SECRET"] = "" },
		"short secret":     func(env map[string]string) { env["QUOTE_TOKEN_SECRET"] = "too-short" },
		"bad strategy":     func(env map[string]string) { env["RATE_LIMIT_STRATEGY"] = "token_bucket" },
		"tasks without redis": func(env map[string]string) {
			env["QUOTE_TASKS_ENABLED"] = "1"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			mutate(env)
			_, err := LoadForTests(env)
			require.Error(t, err)
		})
	}
}
