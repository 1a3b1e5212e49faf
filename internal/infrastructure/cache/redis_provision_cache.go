package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erp/tenancy/internal/infrastructure/config"
)

const defaultKeyPrefix = "tenancy:namespace:"

// RedisProvisionCache shares provisioned namespaces across service instances
type RedisProvisionCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisProvisionCache connects to Redis and verifies the connection
func NewRedisProvisionCache(cfg config.RedisConfig, ttl time.Duration) (*RedisProvisionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisProvisionCacheWithClient(client, "", ttl), nil
}

// NewRedisProvisionCacheWithClient creates a cache on an existing client
func NewRedisProvisionCacheWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisProvisionCache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisProvisionCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Known reports whether namespace has been remembered by any instance
func (c *RedisProvisionCache) Known(ctx context.Context, namespace string) (bool, error) {
	n, err := c.client.Exists(ctx, c.keyPrefix+namespace).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check provisioned namespace: %w", err)
	}
	return n > 0, nil
}

// Remember marks namespace as provisioned for the cache ttl
func (c *RedisProvisionCache) Remember(ctx context.Context, namespace string) error {
	if err := c.client.Set(ctx, c.keyPrefix+namespace, "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to remember provisioned namespace: %w", err)
	}
	return nil
}

// Forget drops namespace from the shared cache
func (c *RedisProvisionCache) Forget(ctx context.Context, namespace string) error {
	if err := c.client.Del(ctx, c.keyPrefix+namespace).Err(); err != nil {
		return fmt.Errorf("failed to forget namespace: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisProvisionCache) Close() error {
	return c.client.Close()
}

var _ ProvisionCache = (*RedisProvisionCache)(nil)
