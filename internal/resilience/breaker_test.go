package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/quote-engine/internal/resilience"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var errDown = errors.New("connection refused")

func newBreaker(clock *fakeClock) *resilience.Breaker {
	return resilience.NewBreaker(resilience.Options{
		Target:       "calculator_store",
		MinRequests:  2,
		FailureRatio: 0.5,
		OpenFor:      time.Second,
		Now:          clock.Now,
	})
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	resilience.MustRegisterMetrics("test", prometheus.NewRegistry())
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := newBreaker(clock)
	ctx := context.Background()

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues("calculator_store")))

	clock.Advance(time.Second)
	require.True(t, b.Allow(ctx), "probe after cool-off")
	require.False(t, b.Allow(ctx), "only one probe while half-open")
	require.Equal(t, resilience.HalfOpen, b.State())

	b.Report(ctx, true)
	require.Equal(t, resilience.Closed, b.State())
	require.True(t, b.Allow(ctx))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("calculator_store", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("calculator_store", "half_open", "closed")))
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newBreaker(clock)
	ctx := context.Background()
	b.Report(ctx, false)
	b.Report(ctx, false)

	clock.Advance(2 * time.Second)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx))
}

func TestBreakerDoClassifiesErrors(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newBreaker(clock)
	ctx := context.Background()
	notFound := errors.New("not found")
	onlyOutages := func(err error) bool { return errors.Is(err, errDown) }

	for i := 0; i < 4; i++ {
		err := b.Do(ctx, func(context.Context) error { return notFound }, onlyOutages)
		require.ErrorIs(t, err, notFound)
	}
	require.Equal(t, resilience.Closed, b.State())

	for i := 0; i < 4; i++ {
		_ = b.Do(ctx, func(context.Context) error { return errDown }, onlyOutages)
	}
	require.Equal(t, resilience.Open, b.State())

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil }, onlyOutages)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.False(t, called)
}
