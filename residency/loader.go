package residency

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/logging"
	"github.com/snow-ghost/readiness/pkg/metrics"
)

const (
	// DefaultPairContext is the reduced window that lets two models coexist
	DefaultPairContext = 4096
	// DefaultSingleContext is the window of a model running alone
	DefaultSingleContext = 8192

	contextStep = 1024
)

// Options configures a Loader
type Options struct {
	PairContext   int
	SingleContext int
	Broadcaster   core.Broadcaster
	Logger        *logging.Logger
	Metrics       *metrics.PrometheusMetrics
}

// Loader coordinates which models are resident in a shared inference runtime.
// Residency changes are serialized; the resident set is tracked explicitly.
type Loader struct {
	runtime       core.ModelRuntime
	pairContext   int
	singleContext int
	events        core.Broadcaster
	logger        *logging.Logger
	metrics       *metrics.PrometheusMetrics

	mu       sync.Mutex
	resident []string
}

// NewLoader creates a Loader over runtime
func NewLoader(runtime core.ModelRuntime, opts Options) *Loader {
	l := &Loader{
		runtime:       runtime,
		pairContext:   opts.PairContext,
		singleContext: opts.SingleContext,
		events:        opts.Broadcaster,
		logger:        logging.OrNop(opts.Logger),
		metrics:       metrics.OrDiscard(opts.Metrics),
	}
	if l.pairContext <= 0 {
		l.pairContext = DefaultPairContext
	}
	if l.singleContext <= 0 {
		l.singleContext = DefaultSingleContext
	}
	if l.events == nil {
		l.events = core.NopBroadcaster{}
	}
	return l
}

// PairContextFor raises base to the smallest multiple of 1024 holding twice
// maxPromptTokens; base is returned unchanged when it already fits
func PairContextFor(base, maxPromptTokens int) int {
	need := 2 * maxPromptTokens
	if base >= need {
		return base
	}
	return (need + contextStep - 1) / contextStep * contextStep
}

// FitPrompts grows the pair context window to hold prompts of maxPromptTokens
func (l *Loader) FitPrompts(maxPromptTokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pairContext = PairContextFor(l.pairContext, maxPromptTokens)
}

// PairContext returns the context window used for pairs
func (l *Loader) PairContext() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pairContext
}

// Resident returns the models this loader believes are resident
func (l *Loader) Resident() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.resident...)
}

// EnsurePair makes main and executor resident. When both are already loaded
// nothing changes; otherwise every loaded model is unloaded, then main and
// a distinct executor are loaded with the reduced pair window. Failures do
// not stop the sequence; they are returned joined for the caller to log.
func (l *Loader) EnsurePair(ctx context.Context, main, executor string) error {
	models := []string{main}
	if executor != "" && executor != main {
		models = append(models, executor)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensure(ctx, main, executor, models, l.pairContext)
}

// EnsureSingle makes model resident alone with the single-model window
func (l *Loader) EnsureSingle(ctx context.Context, model string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensure(ctx, model, "", []string{model}, l.singleContext)
}

func (l *Loader) ensure(ctx context.Context, main, executor string, models []string, contextLength int) error {
	if l.runtime == nil {
		return nil
	}

	var errs []error
	loaded, err := l.runtime.ListLoaded(ctx)
	l.metrics.RecordResidency("list", err)
	if err != nil {
		l.logger.LogResidency(ctx, "list", "", 0, err)
		errs = append(errs, fmt.Errorf("list loaded models: %w", err))
	} else if containsAll(loaded, models) {
		l.resident = append([]string(nil), loaded...)
		return nil
	}

	// clean slate keeps the memory budget deterministic
	for _, m := range loaded {
		err := l.runtime.Unload(ctx, m)
		l.metrics.RecordResidency("unload", err)
		l.logger.LogResidency(ctx, "unload", m, 0, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("unload %s: %w", m, err))
		}
	}
	l.resident = nil

	for _, m := range models {
		l.publish(main, executor, m, core.StatusLoading, "")
		err := l.runtime.Load(ctx, m, core.LoadOptions{ContextLength: contextLength})
		l.metrics.RecordResidency("load", err)
		l.logger.LogResidency(ctx, "load", m, contextLength, err)
		if err != nil {
			l.publish(main, executor, m, core.StatusFailed, err.Error())
			errs = append(errs, fmt.Errorf("load %s: %w", m, err))
			continue
		}
		l.resident = append(l.resident, m)
		l.publish(main, executor, m, core.StatusLoaded, "")
	}
	return errors.Join(errs...)
}

func (l *Loader) publish(main, executor, model string, status core.EventStatus, detail string) {
	msg := model
	if detail != "" {
		msg = model + ": " + detail
	}
	l.events.Publish(core.ProgressEvent{
		Kind:          core.EventLoading,
		MainModel:     main,
		ExecutorModel: executor,
		Status:        status,
		Message:       msg,
	})
}

func containsAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}
