package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fingerprintKeyPrefix = "jobtide:fp:"
	appliedKeyPrefix     = "jobtide:applied:"
)

// NewRedisClient parses redisURL and verifies connectivity.
// Parameters:
//   - ctx: context bounding the connectivity check.
//   - redisURL: redis connection URL.
// Returns:
//   - *redis.Client: connected client.
//   - error: non-nil if the URL is malformed or the ping fails.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// FingerprintCache is a redis fast path for exact fingerprint checks.
// It fronts the durable store; a miss here is never authoritative.
type FingerprintCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFingerprintCache creates a FingerprintCache.
// Parameters:
//   - client: connected redis client.
//   - ttl: key expiry; should cover the fuzzy-match window.
// Returns:
//   - *FingerprintCache: cache instance.
func NewFingerprintCache(client *redis.Client, ttl time.Duration) *FingerprintCache {
	return &FingerprintCache{client: client, ttl: ttl}
}

// Seen reports whether a fingerprint is present in the fast path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fingerprint: normalized-URL fingerprint.
// Returns:
//   - bool: true when the key exists.
//   - error: non-nil if redis is unreachable.
func (c *FingerprintCache) Seen(ctx context.Context, fingerprint string) (bool, error) {
	n, err := c.client.Exists(ctx, fingerprintKeyPrefix+fingerprint).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remember records a fingerprint in the fast path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fingerprint: normalized-URL fingerprint.
// Returns:
//   - error: non-nil if redis is unreachable.
func (c *FingerprintCache) Remember(ctx context.Context, fingerprint string) error {
	return c.client.SetNX(ctx, fingerprintKeyPrefix+fingerprint, 1, c.ttl).Err()
}

// MarkApplied flags a fingerprint as applied in the fast path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fingerprint: normalized-URL fingerprint.
// Returns:
//   - error: non-nil if redis is unreachable.
func (c *FingerprintCache) MarkApplied(ctx context.Context, fingerprint string) error {
	return c.client.Set(ctx, appliedKeyPrefix+fingerprint, 1, c.ttl).Err()
}
