package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache backs [Cache] with a shared Redis instance so multiple backend
// replicas see the same entries.
//
// Each value is written twice: once under the live key with the TTL, and
// once under a shadow key without expiry that serves as the stale fallback.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a [RedisCache] and verifies connectivity.
func NewRedisCache(ctx context.Context, addr string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

func redisKey(userID, key string) string {
	return "nova:cache:" + userID + ":" + key
}

// Get implements [Cache].
func (c *RedisCache) Get(ctx context.Context, userID, key string) ([]byte, bool, bool) {
	live := redisKey(userID, key)

	value, err := c.client.Get(ctx, live).Bytes()
	if err == nil {
		return value, true, true
	}

	value, err = c.client.Get(ctx, live+":stale").Bytes()
	if err == nil {
		return value, false, true
	}

	return nil, false, false
}

// Set implements [Cache].
func (c *RedisCache) Set(ctx context.Context, userID, key string, value []byte, ttl time.Duration) error {
	live := redisKey(userID, key)

	if err := c.client.Set(ctx, live, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	if err := c.client.Set(ctx, live+":stale", value, 0).Err(); err != nil {
		return fmt.Errorf("failed to store stale copy: %w", err)
	}

	return nil
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
