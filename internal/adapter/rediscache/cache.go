// Package rediscache provides an optional Redis-backed cache for generated
// recommendation texts. Identical profiles arrive frequently from the form UI
// and each generative call is slow and rate-limited, so the cache trades a
// little staleness for latency and upstream quota.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rec:"

// Cache implements domain.RecommendationCache on Redis with a fixed TTL.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New parses a Redis URL and returns a Cache. An empty URL returns (nil, nil)
// so callers can treat the cache as disabled.
func New(url string, ttl time.Duration) (*Cache, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	return &Cache{rdb: redis.NewClient(opts), ttl: ttl}, nil
}

// Get returns the cached text for key, reporting whether it was present.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

// Set stores text under key for the configured TTL.
func (c *Cache) Set(ctx context.Context, key, text string) error {
	if err := c.rdb.Set(ctx, keyPrefix+key, text, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping probes the Redis connection, for readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
