package obs

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteCalculationsTotal counts quote calculations by outcome.
	QuoteCalculationsTotal *prometheus.CounterVec
	// QuoteCalculationDuration records end-to-end quote latency in milliseconds,
	// configuration lookup included.
	QuoteCalculationDuration prometheus.Histogram
	// QuoteTotalAmount tracks the distribution of quoted totals per currency.
	QuoteTotalAmount *prometheus.HistogramVec
	// ConfigCacheTotal counts calculator configuration cache lookups.
	ConfigCacheTotal *prometheus.CounterVec
	// QuotePublishTotal counts quote hand-off publish attempts.
	QuotePublishTotal *prometheus.CounterVec
	// RateLimitedTotal counts requests rejected by the quote rate limiter.
	RateLimitedTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteCalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_calculations_total",
			Help:      "Count of quote calculations by outcome.",
		}, []string{"result"})
		QuoteCalculationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_calculation_duration_ms",
			Help:      "Latency of quote calculations in milliseconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		})
		QuoteTotalAmount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_total_amount",
			Help:      "Distribution of quoted totals in major currency units.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000},
		}, []string{"currency"})
		ConfigCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_cache_total",
			Help:      "Count of calculator configuration cache lookups by result.",
		}, []string{"result"})
		QuotePublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_publish_total",
			Help:      "Count of quote hand-off publish attempts by result.",
		}, []string{"result"})
		RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Count of requests rejected by the rate limiter.",
		})

		mustRegisterCollector(reg, QuoteCalculationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteCalculationsTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteCalculationDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				QuoteCalculationDuration = v
			}
		})
		mustRegisterCollector(reg, QuoteTotalAmount, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				QuoteTotalAmount = v
			}
		})
		mustRegisterCollector(reg, ConfigCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ConfigCacheTotal = v
			}
		})
		mustRegisterCollector(reg, QuotePublishTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuotePublishTotal = v
			}
		})
		mustRegisterCollector(reg, RateLimitedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				RateLimitedTotal = v
			}
		})
	})
}

// ObserveQuote records the outcome of one quote calculation. Totals are only
// observed for successful calculations.
func ObserveQuote(result string, elapsed time.Duration, currency string, total float64) {
	if QuoteCalculationsTotal != nil {
		QuoteCalculationsTotal.WithLabelValues(result).Inc()
	}
	if QuoteCalculationDuration != nil {
		QuoteCalculationDuration.Observe(float64(elapsed.Microseconds()) / 1000)
	}
	if result == "ok" && QuoteTotalAmount != nil {
		QuoteTotalAmount.WithLabelValues(strings.ToUpper(currency)).Observe(total)
	}
}

// IncConfigCache counts a configuration cache lookup ("hit", "miss" or "error").
func IncConfigCache(result string) {
	if ConfigCacheTotal != nil {
		ConfigCacheTotal.WithLabelValues(result).Inc()
	}
}

// IncQuotePublish counts a quote hand-off attempt.
func IncQuotePublish(result string) {
	if QuotePublishTotal != nil {
		QuotePublishTotal.WithLabelValues(result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

// IncRateLimited counts one rejected request.
func IncRateLimited() {
	if RateLimitedTotal != nil {
		RateLimitedTotal.Inc()
	}
}
