package store

import (
	"context"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/cache"
	"github.com/snow-ghost/readiness/pkg/metrics"
)

// Cached is a read-through cache over a core.Store for the lookups the
// Intent Router and CLI repeat: prosthetic configs and profiles.
// Writes go to the backing store first, then refresh the cache.
type Cached struct {
	core.Store
	configs  *cache.Loader[*core.ProstheticConfig]
	profiles *cache.Loader[*core.ModelProfile]
	metrics  *metrics.PrometheusMetrics
}

// NewCached wraps backing with caches built from cfg
func NewCached(backing core.Store, cfg cache.Config, m *metrics.PrometheusMetrics) (*Cached, error) {
	configs, err := cache.NewLoader[*core.ProstheticConfig](cfg)
	if err != nil {
		return nil, err
	}
	profiles, err := cache.NewLoader[*core.ModelProfile](cfg)
	if err != nil {
		configs.Close()
		return nil, err
	}
	return &Cached{
		Store:    backing,
		configs:  configs,
		profiles: profiles,
		metrics:  metrics.OrDiscard(m),
	}, nil
}

// GetProstheticConfig serves from cache, loading from the backing store on a miss
func (c *Cached) GetProstheticConfig(ctx context.Context, modelID string) (*core.ProstheticConfig, error) {
	cfg, hit, err := c.configs.Get(ctx, modelID, func(ctx context.Context) (*core.ProstheticConfig, error) {
		return c.Store.GetProstheticConfig(ctx, modelID)
	})
	c.record("prosthetic_config", hit)
	return cfg, err
}

// SaveProstheticConfig writes through and refreshes the cached entry
func (c *Cached) SaveProstheticConfig(ctx context.Context, cfg core.ProstheticConfig) error {
	if err := c.Store.SaveProstheticConfig(ctx, cfg); err != nil {
		c.configs.Invalidate(cfg.ModelID)
		return err
	}
	c.configs.Set(cfg.ModelID, &cfg)
	return nil
}

// GetProfile serves from cache, loading from the backing store on a miss
func (c *Cached) GetProfile(ctx context.Context, modelID string) (*core.ModelProfile, error) {
	p, hit, err := c.profiles.Get(ctx, modelID, func(ctx context.Context) (*core.ModelProfile, error) {
		return c.Store.GetProfile(ctx, modelID)
	})
	c.record("profile", hit)
	return p, err
}

// SaveProfile writes through and drops the cached entry
func (c *Cached) SaveProfile(ctx context.Context, profile core.ModelProfile) error {
	defer c.profiles.Invalidate(profile.ModelID)
	return c.Store.SaveProfile(ctx, profile)
}

// UpdateProbeResults writes through and drops the cached entry
func (c *Cached) UpdateProbeResults(ctx context.Context, modelID string, results []core.ProbeResult) error {
	defer c.profiles.Invalidate(modelID)
	return c.Store.UpdateProbeResults(ctx, modelID, results)
}

// Stats returns the cache statistics by cache name
func (c *Cached) Stats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"prosthetic_config": c.configs.Stats(),
		"profile":           c.profiles.Stats(),
	}
}

// Close releases the caches and the backing store when it is closable
func (c *Cached) Close() error {
	c.configs.Close()
	c.profiles.Close()
	if closer, ok := c.Store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (c *Cached) record(name string, hit bool) {
	if hit {
		c.metrics.RecordCacheHit(name)
	} else {
		c.metrics.RecordCacheMiss(name)
	}
}
