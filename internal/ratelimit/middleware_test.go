package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := Handler{
		Limiter: SlidingWindow{Client: client, Prefix: "ratelimit:"},
		Config: Config{
			Key:    func(*http.Request) string { return "static" },
			Window: time.Second,
			Max:    1,
		},
	}
	counted := handler.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/quotes", nil)
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rr2.Code)
	}
	if rr2.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected limit header: %q", rr2.Header().Get("X-RateLimit-Limit"))
	}
	if !strings.Contains(rr2.Body.String(), `"code":"RATE_LIMITED"`) {
		t.Fatalf("expected error envelope, got %s", rr2.Body.String())
	}
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = client.Close() }()
	handler := Handler{
		Limiter: SlidingWindow{Client: client, Prefix: "ratelimit:"},
		Config: Config{
			Key:    func(*http.Request) string { return "err" },
			Window: time.Second,
			Max:    1,
		},
	}

	called := false
	handler.OnError = func(error) { called = true }

	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/quotes", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected handler to proceed on error, got %d", rr.Code)
	}
	if !called {
		t.Fatal("expected OnError callback to be invoked")
	}
}

func TestHandlerMiddlewareWithoutLimiter(t *testing.T) {
	handler := Handler{Config: Config{Key: ClientCalculatorKey, Window: time.Second, Max: 1}}
	mw := handler.Middleware(okHandler())
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		mw.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/quotes", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected pass-through, got %d", i, rr.Code)
		}
	}
}

func TestFixedWindowAllow(t *testing.T) {
	fw := &FixedWindow{Store: memory.NewStore()}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, remaining, reset, err := fw.Allow(ctx, "calc:1", time.Minute, 2)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if remaining != 1-i {
			t.Fatalf("unexpected remaining: %d", remaining)
		}
		if !reset.After(time.Now()) {
			t.Fatalf("expected reset in the future, got %v", reset)
		}
	}
	allowed, remaining, _, err := fw.Allow(ctx, "calc:1", time.Minute, 2)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed || remaining != 0 {
		t.Fatalf("expected third request rejected, allowed=%v remaining=%d", allowed, remaining)
	}

	allowed, _, _, err = fw.Allow(ctx, "calc:2", time.Minute, 2)
	if err != nil || !allowed {
		t.Fatalf("expected independent key to be allowed, allowed=%v err=%v", allowed, err)
	}
}

func TestFixedWindowRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	fw, err := NewRedisFixedWindow(client, "quote-rl")
	if err != nil {
		t.Fatalf("new fixed window: %v", err)
	}
	handler := Handler{Limiter: fw, Config: Config{Key: func(*http.Request) string { return "k" }, Window: time.Minute, Max: 1}}
	mw := handler.Middleware(okHandler())

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		mw.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/quotes", nil))
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence: %v", codes)
	}
}

func TestClientCalculatorKey(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Post("/calculators/{id}/quotes", func(w http.ResponseWriter, req *http.Request) {
		got = ClientCalculatorKey(req)
	})

	req := httptest.NewRequest(http.MethodPost, "/calculators/ABC-123/quotes", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if got != "calc:abc-123:ip:203.0.113.7" {
		t.Fatalf("unexpected key %q", got)
	}

	plain := httptest.NewRequest(http.MethodPost, "/quotes/preview", nil)
	plain.RemoteAddr = "198.51.100.2:5555"
	if key := ClientCalculatorKey(plain); key != "ip:198.51.100.2" {
		t.Fatalf("unexpected key %q", key)
	}
}

type stubLimiter struct {
	allowed   bool
	remaining int
	reset     time.Time
}

func (s stubLimiter) Allow(context.Context, string, time.Duration, int) (bool, int, time.Time, error) {
	return s.allowed, s.remaining, s.reset, nil
}

func TestHandlerMiddlewareRetryAfterRoundsUp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		reset time.Time
		want  string
	}{
		"fractional wait": {reset: now.Add(1500 * time.Millisecond), want: "2"},
		"already reset":   {reset: now.Add(-time.Second), want: "1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			handler := Handler{
				Limiter: stubLimiter{reset: tc.reset},
				Config:  Config{Key: func(*http.Request) string { return "k" }, Window: time.Minute, Max: 3},
				Now:     func() time.Time { return now },
			}
			rr := httptest.NewRecorder()
			handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/quotes", nil))
			if rr.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", rr.Code)
			}
			if got := rr.Header().Get("Retry-After"); got != tc.want {
				t.Fatalf("Retry-After = %q, want %q", got, tc.want)
			}
			if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
				t.Fatalf("X-RateLimit-Remaining = %q", got)
			}
		})
	}
}

func TestHandlerMiddlewareSkipsEmptyKey(t *testing.T) {
	handler := Handler{
		Limiter: stubLimiter{},
		Config:  Config{Key: func(*http.Request) string { return "" }, Window: time.Minute, Max: 1},
	}
	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/quotes", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rr.Code)
	}
}
