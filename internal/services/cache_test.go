package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetCached(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches once within the ttl", func(t *testing.T) {
		cache := NewMemoryCache()
		fetches := 0
		fetch := func(ctx context.Context) (string, error) {
			fetches++
			return "US", nil
		}

		for i := 0; i < 3; i++ {
			value, err := GetCached(ctx, cache, "u1", "region", time.Hour, fetch)
			if err != nil {
				t.Fatalf("GetCached: %v", err)
			}
			if value != "US" {
				t.Errorf("expected US, got %q", value)
			}
		}
		if fetches != 1 {
			t.Errorf("expected a single fetch, got %d", fetches)
		}
	})

	t.Run("refetches after expiry", func(t *testing.T) {
		cache := NewMemoryCache()
		current := time.Now()
		cache.now = func() time.Time { return current }

		fetches := 0
		fetch := func(ctx context.Context) (int, error) {
			fetches++
			return fetches, nil
		}

		if value, _ := GetCached(ctx, cache, "u1", "n", time.Minute, fetch); value != 1 {
			t.Errorf("expected first fetch result, got %d", value)
		}

		current = current.Add(2 * time.Minute)
		if value, _ := GetCached(ctx, cache, "u1", "n", time.Minute, fetch); value != 2 {
			t.Errorf("expected refetched result, got %d", value)
		}
	})

	t.Run("falls back to stale data when the refetch fails", func(t *testing.T) {
		cache := NewMemoryCache()
		current := time.Now()
		cache.now = func() time.Time { return current }

		fetch := func(ctx context.Context) ([]string, error) {
			return []string{"a", "b"}, nil
		}
		if _, err := GetCached(ctx, cache, "u1", "list", time.Minute, fetch); err != nil {
			t.Fatalf("prime cache: %v", err)
		}

		current = current.Add(time.Hour)
		failing := func(ctx context.Context) ([]string, error) {
			return nil, errors.New("upstream down")
		}
		value, err := GetCached(ctx, cache, "u1", "list", time.Minute, failing)
		if err != nil {
			t.Fatalf("expected stale fallback, got error %v", err)
		}
		if len(value) != 2 || value[0] != "a" {
			t.Errorf("expected stale value, got %v", value)
		}
	})

	t.Run("propagates the error when nothing is cached", func(t *testing.T) {
		cache := NewMemoryCache()
		failing := func(ctx context.Context) (string, error) {
			return "", errors.New("upstream down")
		}
		if _, err := GetCached(ctx, cache, "u1", "missing", time.Minute, failing); err == nil {
			t.Error("expected error with an empty cache")
		}
	})

	t.Run("keys do not collide across users", func(t *testing.T) {
		cache := NewMemoryCache()
		fetchFor := func(value string) func(ctx context.Context) (string, error) {
			return func(ctx context.Context) (string, error) { return value, nil }
		}

		if v, _ := GetCached(ctx, cache, "u1", "region", time.Hour, fetchFor("US")); v != "US" {
			t.Errorf("u1: expected US, got %q", v)
		}
		if v, _ := GetCached(ctx, cache, "u2", "region", time.Hour, fetchFor("DE")); v != "DE" {
			t.Errorf("u2: expected DE, got %q", v)
		}
		if v, _ := GetCached(ctx, cache, "u1", "region", time.Hour, fetchFor("XX")); v != "US" {
			t.Errorf("u1: expected cached US, got %q", v)
		}
	})
}
