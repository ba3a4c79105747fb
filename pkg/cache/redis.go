// Package cache wraps Redis as a namespaced key/value cache with a fixed TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shiva/ridedispatch/config"
)

// NewRedisClient creates a Redis client sized and timed from cfg and
// verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.IOTimeout,
		WriteTimeout: cfg.IOTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// HealthCheck pings the Redis client and returns nil if healthy.
func HealthCheck(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(pingCtx).Err()
}

// Cache stores string values under prefix+key. Every write expires after
// the cache's TTL; a zero TTL keeps entries until they are deleted.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a cache over client.
func New(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key for key.
func (c *Cache) Key(key string) string {
	return c.prefix + key
}

// TTL is the expiry applied by Set.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached value and whether it was present. A miss is not
// an error.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.Key(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("cache: get %s: %w", c.Key(key), err)
	}
	return v, true, nil
}

// Set stores value under key for the cache's TTL.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, c.Key(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", c.Key(key), err)
	}
	return nil
}

// Del removes key.
func (c *Cache) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.Key(key)).Err(); err != nil {
		return fmt.Errorf("cache: del %s: %w", c.Key(key), err)
	}
	return nil
}
