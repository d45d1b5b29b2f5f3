package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/backoffice/backend/internal/domain/billing"
)

type meterEntry struct {
	quantity  int64
	expiresAt time.Time
}

// InMemoryUsageMeterCache implements billing.UsageMeterCache in process
// memory. Suitable for single-instance deployments and testing; meters are
// not shared across instances.
type InMemoryUsageMeterCache struct {
	mu      sync.RWMutex
	entries map[string]meterEntry
}

// NewInMemoryUsageMeterCache creates an in-memory usage meter cache
func NewInMemoryUsageMeterCache() *InMemoryUsageMeterCache {
	return &InMemoryUsageMeterCache{
		entries: make(map[string]meterEntry),
	}
}

// Get returns the cached meter value, reporting whether it was present
func (c *InMemoryUsageMeterCache) Get(ctx context.Context, tenantID uuid.UUID, eventType billing.EventType, periodStart time.Time) (int64, bool, error) {
	key := meterKey(tenantID, eventType, periodStart)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return 0, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return 0, false, nil
	}
	return entry.quantity, true, nil
}

// Set stores the meter value with a TTL
func (c *InMemoryUsageMeterCache) Set(ctx context.Context, tenantID uuid.UUID, eventType billing.EventType, periodStart time.Time, quantity int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[meterKey(tenantID, eventType, periodStart)] = meterEntry{
		quantity:  quantity,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Invalidate drops all cached meters for a tenant
func (c *InMemoryUsageMeterCache) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	prefix := meterKeyPrefix + tenantID.String() + ":"

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

var _ billing.UsageMeterCache = (*InMemoryUsageMeterCache)(nil)
