package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/snow-ghost/readiness/core"
)

// Runtime is an in-memory core.ModelRuntime that records every operation
type Runtime struct {
	mu       sync.Mutex
	loaded   []string
	contexts map[string]int
	ops      []string
	loadErr  map[string]error
	listErr  error
}

var _ core.ModelRuntime = (*Runtime)(nil)

// NewRuntime creates a runtime with the given models already resident
func NewRuntime(loaded ...string) *Runtime {
	return &Runtime{
		loaded:   append([]string(nil), loaded...),
		contexts: make(map[string]int),
		loadErr:  make(map[string]error),
	}
}

// FailLoad makes every load of model fail with err
func (r *Runtime) FailLoad(model string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadErr[model] = err
}

// FailList makes ListLoaded fail with err
func (r *Runtime) FailList(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listErr = err
}

func (r *Runtime) ListLoaded(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "list")
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]string(nil), r.loaded...), nil
}

func (r *Runtime) Unload(ctx context.Context, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "unload:"+model)
	for i, m := range r.loaded {
		if m == model {
			r.loaded = append(r.loaded[:i], r.loaded[i+1:]...)
			break
		}
	}
	delete(r.contexts, model)
	return nil
}

func (r *Runtime) Load(ctx context.Context, model string, opts core.LoadOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, fmt.Sprintf("load:%s@%d", model, opts.ContextLength))
	if err := r.loadErr[model]; err != nil {
		return err
	}
	for _, m := range r.loaded {
		if m == model {
			r.contexts[model] = opts.ContextLength
			return nil
		}
	}
	r.loaded = append(r.loaded, model)
	r.contexts[model] = opts.ContextLength
	return nil
}

// Ops returns the recorded operations, e.g. "list", "unload:a", "load:b@4096"
func (r *Runtime) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

// ResetOps clears the recorded operations
func (r *Runtime) ResetOps() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}

// Loaded returns the resident models
func (r *Runtime) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.loaded...)
}

// ContextOf returns the context length a model was loaded with
func (r *Runtime) ContextOf(model string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contexts[model]
}
