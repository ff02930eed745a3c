package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/snow-ghost/readiness/core"
)

// MemoryStore implements core.Store in process memory
type MemoryStore struct {
	mu          sync.RWMutex
	combos      map[string]core.ComboScore
	comboOrder  []string
	prosthetics map[string]core.ProstheticEntry
	configs     map[string]core.ProstheticConfig
	profiles    map[string]core.ModelProfile
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		combos:      make(map[string]core.ComboScore),
		prosthetics: make(map[string]core.ProstheticEntry),
		configs:     make(map[string]core.ProstheticConfig),
		profiles:    make(map[string]core.ModelProfile),
	}
}

func prostheticKey(modelID, capability string) string {
	return modelID + "\x00" + capability
}

// SaveComboScore stores the latest score of a pair
func (m *MemoryStore) SaveComboScore(ctx context.Context, score core.ComboScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if score.TestedAt.IsZero() {
		score.TestedAt = time.Now()
	}
	key := score.Key()
	if _, ok := m.combos[key]; !ok {
		m.comboOrder = append(m.comboOrder, key)
	}
	m.combos[key] = score
	return nil
}

// ListComboScores returns stored scores, all pairs when mainModel is empty
func (m *MemoryStore) ListComboScores(ctx context.Context, mainModel string) ([]core.ComboScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.ComboScore, 0, len(m.comboOrder))
	for _, key := range m.comboOrder {
		s := m.combos[key]
		if mainModel != "" && s.MainModel != mainModel {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// SaveProsthetic stores an entry, replacing any previous one for the capability
func (m *MemoryStore) SaveProsthetic(ctx context.Context, entry core.ProstheticEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	entry.CategoryImprovements = copyInts(entry.CategoryImprovements)
	m.prosthetics[prostheticKey(entry.ModelID, entry.Capability)] = entry
	return nil
}

// GetProsthetic returns the entry for a model capability
func (m *MemoryStore) GetProsthetic(ctx context.Context, modelID, capability string) (*core.ProstheticEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.prosthetics[prostheticKey(modelID, capability)]
	if !ok {
		return nil, fmt.Errorf("prosthetic %s/%s: %w", modelID, capability, core.ErrModelNotFound)
	}
	entry.CategoryImprovements = copyInts(entry.CategoryImprovements)
	return &entry, nil
}

// SaveProstheticConfig stores the config of a model, last writer wins
func (m *MemoryStore) SaveProstheticConfig(ctx context.Context, cfg core.ProstheticConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}
	cfg.Levels = append([]core.Level(nil), cfg.Levels...)
	m.configs[cfg.ModelID] = cfg
	return nil
}

// GetProstheticConfig returns the config of a model
func (m *MemoryStore) GetProstheticConfig(ctx context.Context, modelID string) (*core.ProstheticConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[modelID]
	if !ok {
		return nil, fmt.Errorf("prosthetic config %s: %w", modelID, core.ErrModelNotFound)
	}
	cfg.Levels = append([]core.Level(nil), cfg.Levels...)
	return &cfg, nil
}

// GetProfile returns the readiness profile of a model
func (m *MemoryStore) GetProfile(ctx context.Context, modelID string) (*core.ModelProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[modelID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", modelID, core.ErrModelNotFound)
	}
	p.ProbeResults = append([]core.ProbeResult(nil), p.ProbeResults...)
	return &p, nil
}

// SaveProfile stores a profile
func (m *MemoryStore) SaveProfile(ctx context.Context, profile core.ModelProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now()
	}
	profile.ProbeResults = append([]core.ProbeResult(nil), profile.ProbeResults...)
	m.profiles[profile.ModelID] = profile
	return nil
}

// UpdateProbeResults replaces the probe results of a profile, creating it when absent
func (m *MemoryStore) UpdateProbeResults(ctx context.Context, modelID string, results []core.ProbeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[modelID]
	if !ok {
		p = core.ModelProfile{ModelID: modelID}
	}
	p.ProbeResults = append([]core.ProbeResult(nil), results...)
	p.UpdatedAt = time.Now()
	m.profiles[modelID] = p
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }

func copyInts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
