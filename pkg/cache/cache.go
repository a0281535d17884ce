// Package cache provides pluggable byte caches for registry HTTP responses.
//
// Three backends are available:
//   - FileCache: directory-backed cache for CLI usage (the default)
//   - RedisCache: shared cache for long-lived daemon deployments
//   - NullCache: disables caching entirely
//
// Keys are opaque strings; backends hash them as needed. Values carry a TTL;
// expired entries behave as misses.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys with per-entry TTLs.
//
// Implementations must treat expired entries as misses. Get returns
// (data, true, nil) on a hit, (nil, false, nil) on a miss, and a non-nil
// error only for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
