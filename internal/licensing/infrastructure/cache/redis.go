// Package cache holds last-known-good license snapshots for offline
// validation fallback.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sidecue/sidecue/internal/licensing/domain"
)

const snapshotTTL = 7 * 24 * time.Hour

// RedisSnapshotCache stores validation snapshots in Redis, keyed by
// license key.
type RedisSnapshotCache struct {
	client *redis.Client
}

// NewRedisSnapshotCache creates a cache from a Redis URL.
func NewRedisSnapshotCache(redisURL string) (*RedisSnapshotCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisSnapshotCache{client: redis.NewClient(opts)}, nil
}

// Ping verifies the Redis connection is still alive.
func (c *RedisSnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *RedisSnapshotCache) Close() error {
	return c.client.Close()
}

func snapshotKey(licenseKey string) string {
	return "license:snapshot:" + licenseKey
}

func (c *RedisSnapshotCache) StoreSnapshot(ctx context.Context, licenseKey string, result domain.ValidationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(licenseKey), payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}
	return nil
}

func (c *RedisSnapshotCache) Snapshot(ctx context.Context, licenseKey string) (*domain.ValidationResult, error) {
	payload, err := c.client.Get(ctx, snapshotKey(licenseKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	var result domain.ValidationResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &result, nil
}
