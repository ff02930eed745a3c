package store

import (
	"fmt"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/cache"
	"github.com/snow-ghost/readiness/pkg/metrics"
)

// Store is a core.Store that owns resources
type Store interface {
	core.Store
	Close() error
}

// Config holds result store configuration
type Config struct {
	UseSQLite bool
	DBPath    string
	Cache     bool
	CacheSize int
}

// New creates the configured store
func New(config Config, m *metrics.PrometheusMetrics) (Store, error) {
	var backing Store
	if config.UseSQLite {
		s, err := NewSQLiteStore(config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		backing = s
	} else {
		backing = NewMemoryStore()
	}

	if !config.Cache {
		return backing, nil
	}
	cc := cache.DefaultConfig()
	if config.CacheSize > 0 {
		cc.MaxSize = config.CacheSize
	}
	cached, err := NewCached(backing, cc, m)
	if err != nil {
		backing.Close()
		return nil, err
	}
	return cached, nil
}
