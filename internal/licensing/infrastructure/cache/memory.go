package cache

import (
	"context"
	"sync"

	"github.com/sidecue/sidecue/internal/licensing/domain"
)

// MemorySnapshotCache keeps snapshots in process memory. Used when no
// Redis instance is configured; snapshots then only survive as long as
// the process.
type MemorySnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[string]domain.ValidationResult
}

// NewMemorySnapshotCache creates an empty cache.
func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{snapshots: make(map[string]domain.ValidationResult)}
}

func (c *MemorySnapshotCache) StoreSnapshot(ctx context.Context, licenseKey string, result domain.ValidationResult) error {
	c.mu.Lock()
	c.snapshots[licenseKey] = result
	c.mu.Unlock()
	return nil
}

func (c *MemorySnapshotCache) Snapshot(ctx context.Context, licenseKey string) (*domain.ValidationResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.snapshots[licenseKey]
	if !ok {
		return nil, nil
	}
	return &result, nil
}
