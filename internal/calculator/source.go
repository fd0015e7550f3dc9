package calculator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/quote-engine/internal/pricing"
)

var (
	// ErrNotFound indicates no configuration exists for the calculator.
	ErrNotFound = errors.New("calculator: config not found")
	// ErrInvalidID indicates the calculator identifier is not a UUID.
	ErrInvalidID = errors.New("calculator: invalid id")
	// ErrStoreUnavailable indicates the backing store is not configured or is
	// being shed by the store circuit breaker after repeated failures.
	ErrStoreUnavailable = errors.New("calculator: store unavailable")
)

// Source resolves the pricing configuration for a calculator.
type Source interface {
	PricingConfig(ctx context.Context, calculatorID string) (pricing.PricingConfig, error)
}

// ParseID normalises and parses a calculator identifier.
func ParseID(raw string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return uuid.Nil, ErrInvalidID
	}
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, trimmed)
	}
	return id, nil
}

// StaticSource serves configurations from memory, keyed by calculator id.
type StaticSource map[string]pricing.PricingConfig

// PricingConfig implements Source.
func (s StaticSource) PricingConfig(_ context.Context, calculatorID string) (pricing.PricingConfig, error) {
	id, err := ParseID(calculatorID)
	if err != nil {
		return pricing.PricingConfig{}, err
	}
	cfg, ok := s[id.String()]
	if !ok {
		return pricing.PricingConfig{}, ErrNotFound
	}
	return cfg, nil
}
