package cache

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the value for a key on a cache miss
type LoadFunc[V any] func(ctx context.Context) (V, error)

// Loader is a read-through cache. Concurrent misses for the same key
// share one LoadFunc call.
type Loader[V any] struct {
	cache  *LRUCache[V]
	group  singleflight.Group
	ttl    time.Duration
	shared atomic.Int64
}

// NewLoader creates a read-through loader over a new LRU cache
func NewLoader[V any](config Config) (*Loader[V], error) {
	c, err := NewLRUCache[V](config)
	if err != nil {
		return nil, err
	}
	return &Loader[V]{cache: c, ttl: config.DefaultTTL}, nil
}

// Get returns the cached value or loads it. Failed loads are not cached.
func (l *Loader[V]) Get(ctx context.Context, key string, load LoadFunc[V]) (V, bool, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, true, nil
	}

	result, err, shared := l.group.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		l.cache.Set(key, v, l.ttl)
		return v, nil
	})
	if shared {
		l.shared.Add(1)
	}
	if err != nil {
		var zero V
		return zero, false, err
	}
	return result.(V), false, nil
}

// Set stores a value directly, used after writes
func (l *Loader[V]) Set(key string, value V) {
	l.cache.Set(key, value, l.ttl)
}

// Invalidate drops a key
func (l *Loader[V]) Invalidate(key string) {
	l.group.Forget(key)
	l.cache.Delete(key)
}

// Stats returns cache statistics including shared loads
func (l *Loader[V]) Stats() Stats {
	s := l.cache.Stats()
	s.Shared = l.shared.Load()
	return s
}

// Close releases the underlying cache
func (l *Loader[V]) Close() {
	l.cache.Close()
}
