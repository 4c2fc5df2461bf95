// Package cachemanager provides a typed in-memory cache with single-flight
// loading. Caches live for one process only.
package cachemanager

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/newhook/cifail/internal/logging"
)

const (
	// DefaultExpiration keeps entries for the lifetime of a typical invocation.
	DefaultExpiration = 10 * time.Minute
	// DefaultCleanupInterval is how often expired entries are purged.
	DefaultCleanupInterval = 15 * time.Minute
)

// InMemoryCacheManager is a typed key/value cache on top of go-cache.
type InMemoryCacheManager[K comparable, V any] struct {
	name  string
	cache *gocache.Cache
	group singleflight.Group
}

// NewInMemoryCacheManager creates a named cache.
func NewInMemoryCacheManager[K comparable, V any](name string, expiration, cleanup time.Duration) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		name:  name,
		cache: gocache.New(expiration, cleanup),
	}
}

func keyString[K comparable](key K) string {
	return fmt.Sprint(key)
}

// Get returns the cached value for key. A value of the wrong type counts as a miss.
func (m *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V
	raw, ok := m.cache.Get(keyString(key))
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores value under key for ttl.
func (m *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	m.cache.Set(keyString(key), value, ttl)
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Concurrent callers for the same key share one load. Errors are not cached.
func (m *InMemoryCacheManager[K, V]) GetOrLoad(ctx context.Context, key K, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := m.Get(ctx, key); ok {
		logging.Debug("cache hit", "cache", m.name, "key", keyString(key))
		return v, nil
	}

	res, err, _ := m.group.Do(keyString(key), func() (any, error) {
		if v, ok := m.Get(ctx, key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		m.Set(ctx, key, v, gocache.DefaultExpiration)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}
