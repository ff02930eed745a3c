package cache

import "time"

// Entry is a cached value with expiry bookkeeping
type Entry[V any] struct {
	Value        V
	CreatedAt    time.Time
	ExpiresAt    time.Time
	AccessCount  int
	LastAccessed time.Time
}

// IsExpired checks if the entry is expired at now
func (e *Entry[V]) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Touch updates the access time and count
func (e *Entry[V]) Touch(now time.Time) {
	e.LastAccessed = now
	e.AccessCount++
}

// Config holds cache configuration
type Config struct {
	MaxSize         int           `json:"max_size" yaml:"max_size"`                 // Maximum number of entries
	DefaultTTL      time.Duration `json:"default_ttl" yaml:"default_ttl"`           // Default TTL for entries
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"` // 0 disables the sweeper
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		MaxSize:    1000,
		DefaultTTL: 5 * time.Minute,
	}
}

// Stats represents cache statistics
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	Shared      int64   `json:"shared"`
}

// CalculateHitRate calculates the hit rate
func (s *Stats) CalculateHitRate() {
	total := s.Hits + s.Misses
	if total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	} else {
		s.HitRate = 0.0
	}
}
