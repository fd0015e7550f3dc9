package calculator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/quote-engine/internal/pricing"
)

const defaultKeyPrefix = "calculator:config:"

// Cache stores validated pricing configurations in Redis as JSON.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs a cache helper. A nil client yields a cache that always misses.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: defaultKeyPrefix}
}

// Key returns the Redis key used for calculatorID.
func (c *Cache) Key(calculatorID string) string {
	prefix := defaultKeyPrefix
	if c != nil && c.prefix != "" {
		prefix = c.prefix
	}
	return prefix + calculatorID
}

// Get loads a cached configuration. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context, calculatorID string) (pricing.PricingConfig, bool, error) {
	var cfg pricing.PricingConfig
	if c == nil || c.client == nil || calculatorID == "" {
		return cfg, false, nil
	}
	data, err := c.client.Get(ctx, c.Key(calculatorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cfg, false, nil
		}
		return cfg, false, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return pricing.PricingConfig{}, false, err
	}
	return cfg, true, nil
}

// Set serialises cfg and stores it with the configured TTL.
func (c *Cache) Set(ctx context.Context, calculatorID string, cfg pricing.PricingConfig) error {
	if c == nil || c.client == nil || calculatorID == "" {
		return nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.Key(calculatorID), data, c.ttl).Err()
}

// Invalidate drops the cached configuration so the next read goes to the store.
func (c *Cache) Invalidate(ctx context.Context, calculatorID string) error {
	if c == nil || c.client == nil || calculatorID == "" {
		return nil
	}
	return c.client.Del(ctx, c.Key(calculatorID)).Err()
}
