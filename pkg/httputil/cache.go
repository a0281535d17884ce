package httputil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sublimetools/sublime/pkg/cache"
)

// ResponseCache caches JSON-marshalable registry responses on top of a
// [cache.Cache] backend.
//
// Keys should be namespaced by the caller (e.g., "npm:lodash") to avoid
// collisions between registries. Values are marshaled with encoding/json.
//
// ResponseCache itself is stateless; concurrency guarantees are those of
// the underlying backend.
type ResponseCache struct {
	backend cache.Cache
	ttl     time.Duration
	prefix  string
}

// NewResponseCache creates a ResponseCache over the given backend and TTL.
// A TTL of 0 means entries never expire (subject to backend policy).
func NewResponseCache(backend cache.Cache, ttl time.Duration) *ResponseCache {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	return &ResponseCache{backend: backend, ttl: ttl}
}

// NewFileResponseCache creates a ResponseCache over a file backend in dir.
// If dir is empty, ~/.cache/sublime/ is used.
func NewFileResponseCache(dir string, ttl time.Duration) (*ResponseCache, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".cache", "sublime")
	}
	backend, err := cache.NewFileCache(dir)
	if err != nil {
		return nil, err
	}
	return NewResponseCache(backend, ttl), nil
}

// TTL returns the time-to-live duration for cache entries.
func (c *ResponseCache) TTL() time.Duration { return c.ttl }

// Get retrieves a cached value by key and unmarshals it into v.
// Returns (true, nil) on a hit, (false, nil) on a miss, and (false, err)
// for backend or unmarshal failures. v is unchanged on a miss.
func (c *ResponseCache) Get(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := c.backend.Get(ctx, c.prefix+key)
	if err != nil || !ok {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

// Set stores a value in the cache under the given key, refreshing its TTL.
func (c *ResponseCache) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.backend.Set(ctx, c.prefix+key, data, c.ttl)
}

// Namespace returns a view of the cache that prefixes all keys with prefix.
//
// Namespace calls can be chained to create hierarchical key spaces:
//
//	rc.Namespace("npm:").Namespace("@scope:")  // prefix: "npm:@scope:"
func (c *ResponseCache) Namespace(prefix string) *ResponseCache {
	return &ResponseCache{
		backend: c.backend,
		ttl:     c.ttl,
		prefix:  c.prefix + prefix,
	}
}
