package calculator

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/quote-engine/internal/obs"
	"github.com/noah-isme/quote-engine/internal/pricing"
)

// CachedSource is a read-through cache in front of another Source.
// Cache failures are logged and never fail the read.
type CachedSource struct {
	Inner  Source
	Cache  *Cache
	Logger zerolog.Logger
}

// PricingConfig implements Source.
func (s *CachedSource) PricingConfig(ctx context.Context, calculatorID string) (pricing.PricingConfig, error) {
	id, err := ParseID(calculatorID)
	if err != nil {
		return pricing.PricingConfig{}, err
	}
	key := id.String()

	cfg, ok, err := s.Cache.Get(ctx, key)
	switch {
	case err != nil:
		obs.IncConfigCache("error")
		s.Logger.Warn().Err(err).Str("calculator_id", key).Msg("config cache read failed")
	case ok:
		obs.IncConfigCache("hit")
		return cfg, nil
	default:
		obs.IncConfigCache("miss")
	}

	cfg, err = s.Inner.PricingConfig(ctx, key)
	if err != nil {
		return pricing.PricingConfig{}, err
	}
	if err := s.Cache.Set(ctx, key, cfg); err != nil {
		s.Logger.Warn().Err(err).Str("calculator_id", key).Msg("config cache write failed")
	}
	return cfg, nil
}
