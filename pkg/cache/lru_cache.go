package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is a size-bounded LRU cache with per-entry TTL
type LRUCache[V any] struct {
	cache    *lru.Cache[string, *Entry[V]]
	config   Config
	stats    Stats
	mu       sync.Mutex
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewLRUCache creates a new LRU cache
func NewLRUCache[V any](config Config) (*LRUCache[V], error) {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultConfig().MaxSize
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultConfig().DefaultTTL
	}

	c := &LRUCache[V]{
		config:   config,
		stats:    Stats{MaxSize: config.MaxSize},
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	cache, err := lru.New[string, *Entry[V]](config.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	c.cache = cache

	if config.CleanupInterval > 0 {
		go c.cleanup()
	}
	return c, nil
}

// Get retrieves a live value from the cache
func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, exists := c.cache.Get(key)
	if !exists {
		c.stats.Misses++
		return zero, false
	}

	now := c.now()
	if entry.IsExpired(now) {
		c.cache.Remove(key)
		c.stats.Expirations++
		c.stats.Misses++
		return zero, false
	}

	entry.Touch(now)
	c.stats.Hits++
	return entry.Value, true
}

// Set stores a value; ttl <= 0 uses the default TTL
func (c *LRUCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	now := c.now()
	if evicted := c.cache.Add(key, &Entry[V]{
		Value:        value,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
	}); evicted {
		c.stats.Evictions++
	}
}

// Delete removes a value from the cache
func (c *LRUCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Remove(key)
}

// Clear removes all values from the cache
func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Purge()
}

// Stats returns cache statistics
func (c *LRUCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.cache.Len()
	stats.CalculateHitRate()
	return stats
}

// Len returns the number of items in the cache
func (c *LRUCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Len()
}

// Close stops the background sweeper
func (c *LRUCache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// cleanup periodically removes expired entries
func (c *LRUCache[V]) cleanup() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.stopChan:
			return
		}
	}
}

// cleanupExpired removes expired entries
func (c *LRUCache[V]) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, key := range c.cache.Keys() {
		if entry, exists := c.cache.Peek(key); exists && entry.IsExpired(now) {
			c.cache.Remove(key)
			c.stats.Expirations++
		}
	}
}
