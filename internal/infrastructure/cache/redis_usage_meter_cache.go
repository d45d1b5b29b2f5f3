package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/infrastructure/config"
)

const meterKeyPrefix = "usage:meter:"

// RedisUsageMeterCache implements billing.UsageMeterCache on Redis. It is
// suitable for distributed deployments where multiple instances serve
// dashboard reads. Limit enforcement never consults this cache.
type RedisUsageMeterCache struct {
	client *redis.Client
}

// NewRedisUsageMeterCache creates a Redis-backed usage meter cache
func NewRedisUsageMeterCache(cfg config.RedisConfig) (*RedisUsageMeterCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisUsageMeterCache{client: client}, nil
}

// NewRedisUsageMeterCacheWithClient creates a cache with an existing client.
// Useful for testing or when sharing a client across components.
func NewRedisUsageMeterCacheWithClient(client *redis.Client) *RedisUsageMeterCache {
	return &RedisUsageMeterCache{client: client}
}

func meterKey(tenantID uuid.UUID, eventType billing.EventType, periodStart time.Time) string {
	return fmt.Sprintf("%s%s:%s:%s", meterKeyPrefix, tenantID, eventType, periodStart.UTC().Format("200601"))
}

// Get returns the cached meter value, reporting whether it was present
func (c *RedisUsageMeterCache) Get(ctx context.Context, tenantID uuid.UUID, eventType billing.EventType, periodStart time.Time) (int64, bool, error) {
	val, err := c.client.Get(ctx, meterKey(tenantID, eventType, periodStart)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read usage meter: %w", err)
	}

	quantity, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt usage meter value %q: %w", val, err)
	}
	return quantity, true, nil
}

// Set stores the meter value with a TTL
func (c *RedisUsageMeterCache) Set(ctx context.Context, tenantID uuid.UUID, eventType billing.EventType, periodStart time.Time, quantity int64, ttl time.Duration) error {
	err := c.client.Set(ctx, meterKey(tenantID, eventType, periodStart), strconv.FormatInt(quantity, 10), ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to cache usage meter: %w", err)
	}
	return nil
}

// Invalidate drops all cached meters for a tenant. Called after each
// recorded event so dashboards converge quickly.
func (c *RedisUsageMeterCache) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	pattern := fmt.Sprintf("%s%s:*", meterKeyPrefix, tenantID)

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan usage meter keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate usage meters: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisUsageMeterCache) Close() error {
	return c.client.Close()
}

var _ billing.UsageMeterCache = (*RedisUsageMeterCache)(nil)
