package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/quote-engine/internal/common"
	"github.com/noah-isme/quote-engine/internal/obs"
)

// Limiter decides whether one more event for key fits within max per window.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler enforces rate limits before delegating to the next handler.
// Limiter failures fail open.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
	Now     func() time.Time
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Config.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := h.Config.Key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		headers.Set("Retry-After", strconv.Itoa(h.retryAfter(resetAt)))
		obs.IncRateLimited()
		obs.AddLogField(r.Context(), "rate_limit", "exceeded")
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
	})
}

// retryAfter rounds the wait up to whole seconds, with a floor of one second
// so clients never retry immediately into the same window.
func (h Handler) retryAfter(resetAt time.Time) int {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	wait := resetAt.Sub(now())
	if wait <= 0 {
		return 1
	}
	return int(math.Ceil(wait.Seconds()))
}

// ClientCalculatorKey buckets requests by client IP and the calculator in the route.
func ClientCalculatorKey(r *http.Request) string {
	ip := common.ClientIP(r)
	if ip == "" {
		ip = "unknown"
	}
	calculatorID := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "id")))
	if calculatorID == "" {
		return "ip:" + ip
	}
	return "calc:" + calculatorID + ":ip:" + ip
}
