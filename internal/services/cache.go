package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Cache stores per-user response snapshots with a TTL.
//
// Get reports both whether a value exists and whether it is still fresh;
// expired values remain retrievable so callers can fall back to stale data
// when a refetch fails. Keys never collide across users.
type Cache interface {
	Get(ctx context.Context, userID, key string) (value []byte, fresh bool, ok bool)
	Set(ctx context.Context, userID, key string, value []byte, ttl time.Duration) error
}

// GetCached returns the cached value for (userID, key) when fresh, otherwise
// invokes fetch and stores the result for ttl.
//
// When fetch fails and any prior value exists, even an expired one, the stale
// value is returned instead of the error.
func GetCached[T any](ctx context.Context, cache Cache, userID, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	cached, fresh, ok := cache.Get(ctx, userID, key)
	if ok && fresh {
		var value T
		if err := json.Unmarshal(cached, &value); err == nil {
			return value, nil
		}
	}

	value, err := fetch(ctx)
	if err != nil {
		if ok {
			var stale T
			if uerr := json.Unmarshal(cached, &stale); uerr == nil {
				return stale, nil
			}
		}
		return zero, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("failed to encode cache value: %w", err)
	}
	if err := cache.Set(ctx, userID, key, encoded, ttl); err != nil {
		return zero, fmt.Errorf("failed to store cache value: %w", err)
	}

	return value, nil
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the process-local [Cache].
//
// Entries are only ever replaced, never evicted; the key space is small and
// bounded per user (follow checks, category listings, region code), so the
// map stays small in practice.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty [MemoryCache].
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func cacheKey(userID, key string) string {
	return userID + "|" + key
}

// Get implements [Cache].
func (c *MemoryCache) Get(_ context.Context, userID, key string) ([]byte, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(userID, key)]
	if !ok {
		return nil, false, false
	}

	return entry.value, c.now().Before(entry.expiresAt), true
}

// Set implements [Cache].
func (c *MemoryCache) Set(_ context.Context, userID, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(userID, key)] = memoryEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}

	return nil
}
