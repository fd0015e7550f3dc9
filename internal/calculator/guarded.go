package calculator

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/quote-engine/internal/pricing"
	"github.com/noah-isme/quote-engine/internal/resilience"
)

// GuardedSource fails fast with ErrStoreUnavailable while the breaker is open,
// so a struggling database is not hammered by quote traffic.
type GuardedSource struct {
	Inner   Source
	Breaker *resilience.Breaker
}

// PricingConfig implements Source.
func (s *GuardedSource) PricingConfig(ctx context.Context, calculatorID string) (pricing.PricingConfig, error) {
	if s.Breaker == nil {
		return s.Inner.PricingConfig(ctx, calculatorID)
	}
	var cfg pricing.PricingConfig
	err := s.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		cfg, err = s.Inner.PricingConfig(ctx, calculatorID)
		return err
	}, isStoreFailure)
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return pricing.PricingConfig{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return cfg, err
}

// isStoreFailure reports errors that say something about store health rather
// than about the request.
func isStoreFailure(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidID), errors.Is(err, pricing.ErrInvalidConfig):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
