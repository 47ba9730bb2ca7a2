package cache

import (
	"context"
	"sync"
	"time"

	"github.com/quotedesk/backend/internal/domain"
)

// snapshotEntry holds one cached catalog snapshot with its expiration
type snapshotEntry struct {
	snapshot   *domain.CatalogSnapshot
	expiration time.Time
}

// SnapshotCache is a thread-safe in-memory cache of per-organization
// catalog snapshots with TTL support. Catalog and cross-reference writes
// invalidate the owning org's entry.
type SnapshotCache struct {
	data  map[uint]snapshotEntry
	mutex sync.RWMutex
}

// NewSnapshotCache creates a snapshot cache and starts its janitor
func NewSnapshotCache() *SnapshotCache {
	c := &SnapshotCache{
		data: make(map[uint]snapshotEntry),
	}

	// Cleanup goroutine removes expired entries every 10 minutes
	go c.cleanupExpired()

	return c
}

// Get retrieves the cached snapshot for an organization
func (c *SnapshotCache) Get(ctx context.Context, orgID uint) (*domain.CatalogSnapshot, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.data[orgID]
	if !exists {
		return nil, domain.ErrCacheMiss
	}
	if time.Now().After(entry.expiration) {
		return nil, domain.ErrCacheMiss
	}

	return entry.snapshot, nil
}

// Set stores a snapshot with the given TTL
func (c *SnapshotCache) Set(ctx context.Context, snapshot *domain.CatalogSnapshot, ttl time.Duration) error {
	if snapshot == nil {
		return domain.ErrInvalidRequest
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[snapshot.OrganizationID] = snapshotEntry{
		snapshot:   snapshot,
		expiration: time.Now().Add(ttl),
	}
	return nil
}

// Invalidate drops the cached snapshot for an organization
func (c *SnapshotCache) Invalidate(ctx context.Context, orgID uint) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, orgID)
	return nil
}

// Size returns the current number of cached snapshots (for monitoring)
func (c *SnapshotCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// cleanupExpired removes expired entries periodically
func (c *SnapshotCache) cleanupExpired() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		now := time.Now()
		for orgID, entry := range c.data {
			if now.After(entry.expiration) {
				delete(c.data, orgID)
			}
		}
		c.mutex.Unlock()
	}
}
