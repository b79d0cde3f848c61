package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthRegistry_AllHealthy(t *testing.T) {
	registry := NewHealthRegistry()
	registry.Register("database", DatabaseHealthChecker(func(ctx context.Context) error { return nil }))
	registry.Register("redis", RedisHealthChecker(func(ctx context.Context) error { return nil }))

	overall := registry.Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, overall.Status)
	assert.Len(t, overall.Checks, 2)
}

func TestHealthRegistry_RedisFailureDegrades(t *testing.T) {
	registry := NewHealthRegistry()
	registry.Register("database", DatabaseHealthChecker(func(ctx context.Context) error { return nil }))
	registry.Register("redis", RedisHealthChecker(func(ctx context.Context) error { return errors.New("down") }))

	overall := registry.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, overall.Status)
	assert.Equal(t, HealthStatusDegraded, overall.Checks["redis"].Status)
}

func TestHealthRegistry_DatabaseFailureIsUnhealthy(t *testing.T) {
	registry := NewHealthRegistry()
	registry.Register("database", DatabaseHealthChecker(func(ctx context.Context) error { return errors.New("down") }))
	registry.Register("redis", RedisHealthChecker(func(ctx context.Context) error { return errors.New("down") }))

	overall := registry.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, overall.Status)
	assert.Contains(t, overall.Checks["database"].Message, "down")
}
