package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/quote-engine/internal/common"
)

// ErrDisabled is returned by a probe whose dependency is intentionally not configured.
// Disabled dependencies do not fail readiness.
var ErrDisabled = errors.New("health: dependency disabled")

var draining atomic.Bool

// SetReady toggles readiness; the server flips it to false when shutdown begins so
// load balancers stop routing quote traffic before connections close.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes Postgres and Redis in parallel. A disabled dependency does not
// fail readiness; a draining server always reports 503.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	if h.Checker == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "dependencies unavailable", nil)
		return
	}

	var dbErr, redisErr error
	var g errgroup.Group
	g.Go(func() error {
		dbErr = h.Checker.PingDB(r.Context(), h.dbTimeout())
		return nil
	})
	g.Go(func() error {
		redisErr = h.Checker.PingRedis(r.Context(), h.redisTimeout())
		return nil
	})
	_ = g.Wait()

	dbStatus, dbOK := probeStatus(dbErr)
	redisStatus, redisOK := probeStatus(redisErr)
	body := map[string]string{"status": "ok", "db": dbStatus, "redis": redisStatus}
	code := http.StatusOK
	if !dbOK || !redisOK {
		body["status"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, body)
}

func probeStatus(err error) (string, bool) {
	switch {
	case err == nil:
		return "ok", true
	case errors.Is(err, ErrDisabled):
		return "disabled", true
	default:
		return err.Error(), false
	}
}

func (h Handler) dbTimeout() time.Duration {
	if h.DBTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.DBTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
