// Package readiness runs the staged readiness protocol: a fail-fast
// qualifying gate followed by weighted capability discovery.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/intent"
	"github.com/snow-ghost/readiness/pkg/logging"
	"github.com/snow-ghost/readiness/pkg/metrics"
	"github.com/snow-ghost/readiness/pkg/tracing"
	"github.com/snow-ghost/readiness/residency"
	"github.com/snow-ghost/readiness/testkit"
)

const (
	ModeSingle = "single"
	ModeDual   = "dual"

	DefaultThreshold    = 70
	DefaultProbeTimeout = 30 * time.Second

	suite = "readiness"
)

// Request names the model, or pair, to assess
type Request struct {
	Mode     string
	Main     string
	Executor string
}

// Validate checks the mode and the model ids it requires
func (r Request) Validate() error {
	switch r.Mode {
	case ModeSingle, ModeDual:
	default:
		return fmt.Errorf("%w: unknown mode %q", core.ErrInvalidRequest, r.Mode)
	}
	if r.Main == "" {
		return fmt.Errorf("%w: main model is required", core.ErrInvalidRequest)
	}
	if r.Mode == ModeDual && r.Executor == "" {
		return fmt.Errorf("%w: dual mode requires an executor model", core.ErrInvalidRequest)
	}
	return nil
}

// ProfileKey is the id results are persisted under
func (r Request) ProfileKey() string {
	if r.Mode == ModeDual {
		return r.Main + "+" + r.Executor
	}
	return r.Main
}

type Options struct {
	Threshold    int
	ProbeTimeout time.Duration
	Gates        []testkit.Probe
	Discovery    []testkit.Probe

	Loader      *residency.Loader
	Store       core.Store
	Broadcaster core.Broadcaster
	Logger      *logging.Logger
	Metrics     *metrics.PrometheusMetrics
	Tracer      *tracing.Tracer
}

// Runner assesses one model or pair at a time
type Runner struct {
	probes    *testkit.Runner
	threshold int
	timeout   time.Duration
	gates     []testkit.Probe
	discovery []testkit.Probe
	fitness   *core.WeightedFitness

	loader  *residency.Loader
	store   core.Store
	events  core.Broadcaster
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
}

func NewRunner(router testkit.Router, opts Options) *Runner {
	r := &Runner{
		probes:    testkit.NewRunner(router),
		threshold: opts.Threshold,
		timeout:   opts.ProbeTimeout,
		gates:     opts.Gates,
		discovery: opts.Discovery,
		fitness:   core.ReadinessFitness(),
		loader:    opts.Loader,
		store:     opts.Store,
		events:    opts.Broadcaster,
		logger:    logging.OrNop(opts.Logger),
		metrics:   metrics.OrDiscard(opts.Metrics),
		tracer:    tracing.OrNop(opts.Tracer),
	}
	if r.threshold <= 0 {
		r.threshold = DefaultThreshold
	}
	if r.timeout <= 0 {
		r.timeout = DefaultProbeTimeout
	}
	if len(r.gates) == 0 {
		r.gates = testkit.GateProbes()
	}
	if len(r.discovery) == 0 {
		r.discovery = testkit.DiscoveryProbes()
	}
	if r.events == nil {
		r.events = core.NopBroadcaster{}
	}
	return r
}

// Assess runs the qualifying gate and, when every gate passes, discovery.
// The only error is an invalid request; probe failures lower the report.
func (r *Runner) Assess(ctx context.Context, req Request) (core.ReadinessReport, error) {
	if err := req.Validate(); err != nil {
		return core.ReadinessReport{}, err
	}

	report := core.ReadinessReport{
		RunID:         uuid.NewString(),
		Mode:          req.Mode,
		MainModel:     req.Main,
		ExecutorModel: req.Executor,
		Probes:        []core.ProbeResult{},
		StartedAt:     time.Now(),
	}
	logger := r.logger.WithRunID(report.RunID)
	ctx, span := r.tracer.StartAssessmentSpan(ctx, report.RunID, req.Mode, req.Main, req.Executor)
	defer span.End()
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		logger = logger.WithTraceID(ctx, traceID)
	}

	r.ensureResident(ctx, req)
	binding := intent.Binding{
		Main:     req.Main,
		Executor: req.Executor,
		Dual:     req.Mode == ModeDual,
		Timeout:  r.timeout,
	}

	if !r.qualify(ctx, binding, req, &report) {
		report.Status = core.ReadinessDisqualified
		if ctx.Err() != nil {
			report.Status = core.ReadinessFailed
		}
		return r.finish(ctx, logger, req, report), nil
	}

	r.discover(ctx, binding, req, &report)
	report.Passed = ctx.Err() == nil && r.fitness.Passed(report.OverallScore, r.threshold)
	report.Status = core.ReadinessFailed
	if report.Passed {
		report.Status = core.ReadinessCertified
	}
	tracing.AddSpanAttributes(span, map[string]interface{}{
		"readiness.overall": report.OverallScore,
		"readiness.passed":  report.Passed,
	})
	return r.finish(ctx, logger, req, report), nil
}

// qualify runs the gates in order and stops at the first failure
func (r *Runner) qualify(ctx context.Context, b intent.Binding, req Request, report *core.ReadinessReport) bool {
	r.phase(report.RunID, req, testkit.PhaseQualifying, core.StatusRunning, "")
	for i, p := range r.gates {
		if ctx.Err() != nil {
			r.phase(report.RunID, req, testkit.PhaseQualifying, core.StatusCancelled, "")
			return false
		}
		result, _ := r.probes.RunProbe(ctx, b, p)
		report.Probes = append(report.Probes, result)
		r.recordProbe(ctx, report.RunID, req, p, result, i+1, len(r.gates))
		if !result.Passed {
			report.DisqualifiedAt = p.Name
			r.phase(report.RunID, req, testkit.PhaseQualifying, core.StatusError, "disqualified at "+p.Name)
			return false
		}
	}
	r.phase(report.RunID, req, testkit.PhaseQualifying, core.StatusCompleted, "")
	return true
}

func (r *Runner) discover(ctx context.Context, b intent.Binding, req Request, report *core.ReadinessReport) {
	r.phase(report.RunID, req, testkit.PhaseDiscovery, core.StatusRunning, "")
	byCategory := make(map[string][]int)
	for i, p := range r.discovery {
		if ctx.Err() != nil {
			r.phase(report.RunID, req, testkit.PhaseDiscovery, core.StatusCancelled, "")
			break
		}
		result, routed := r.probes.RunProbe(ctx, b, p)
		if b.Dual {
			result.Attribution = Attribute(p, routed)
		}
		report.Probes = append(report.Probes, result)
		byCategory[p.Category] = append(byCategory[p.Category], result.Score)
		r.recordProbe(ctx, report.RunID, req, p, result, i+1, len(r.discovery))
	}

	report.CategoryScores = make(map[string]int, len(core.ReadinessOrder))
	for _, c := range core.ReadinessOrder {
		report.CategoryScores[c] = core.Mean(byCategory[c])
	}
	report.OverallScore = r.fitness.Score(report.CategoryScores)
	if ctx.Err() == nil {
		r.phase(report.RunID, req, testkit.PhaseDiscovery, core.StatusCompleted, fmt.Sprintf("overall %d", report.OverallScore))
	}
}

// Attribute names the side of a pair a discovery result belongs to
func Attribute(p testkit.Probe, routed intent.RouteResult) core.Attribution {
	switch {
	case p.Category == "multi_turn" || p.Category == "fault_injection":
		return core.AttributionLoop
	case p.ExpectTool != "" && routed.ChosenTool == p.ExpectTool:
		return core.AttributionExecutor
	}
	return core.AttributionMain
}

func (r *Runner) ensureResident(ctx context.Context, req Request) {
	if r.loader == nil {
		return
	}
	var err error
	if req.Mode == ModeDual {
		err = r.loader.EnsurePair(ctx, req.Main, req.Executor)
	} else {
		err = r.loader.EnsureSingle(ctx, req.Main)
	}
	if err != nil {
		r.logger.Warn("model residency incomplete", "main", req.Main, "executor", req.Executor, "error", err)
	}
}

func (r *Runner) finish(ctx context.Context, logger *logging.Logger, req Request, report core.ReadinessReport) core.ReadinessReport {
	report.FinishedAt = time.Now()
	r.metrics.RecordReadiness(req.ProfileKey(), req.Mode, report.OverallScore)
	r.persist(ctx, req.ProfileKey(), report)
	logger.Info("readiness assessment finished",
		"model", req.ProfileKey(),
		"mode", req.Mode,
		"status", report.Status,
		"disqualified_at", report.DisqualifiedAt,
		"overall", report.OverallScore,
	)
	return report
}

// persist stores probe results and the updated profile; failures are only logged
func (r *Runner) persist(ctx context.Context, key string, report core.ReadinessReport) {
	if r.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := r.store.UpdateProbeResults(ctx, key, report.Probes); err != nil {
		r.logger.LogPersistenceFailure(ctx, "update_probe_results", key, err)
	}

	profile, err := r.store.GetProfile(ctx, key)
	if err != nil {
		if !errors.Is(err, core.ErrModelNotFound) {
			r.logger.LogPersistenceFailure(ctx, "get_profile", key, err)
		}
		profile = &core.ModelProfile{ModelID: key, ProbeResults: report.Probes}
	}
	profile.OverallScore = report.OverallScore
	profile.Certified = report.Status == core.ReadinessCertified
	profile.DisqualifiedAt = report.DisqualifiedAt
	profile.UpdatedAt = report.FinishedAt
	if err := r.store.SaveProfile(ctx, *profile); err != nil {
		r.logger.LogPersistenceFailure(ctx, "save_profile", key, err)
	}
}

func (r *Runner) recordProbe(ctx context.Context, runID string, req Request, p testkit.Probe, result core.ProbeResult, index, total int) {
	label := "passed"
	status := core.StatusCompleted
	switch {
	case result.Error != "":
		label, status = "error", core.StatusError
	case !result.Passed:
		label = "failed"
	}
	r.metrics.RecordTest(suite, p.Category, label)
	r.logger.LogTestResult(ctx, req.Main, req.Executor, p.ID, result.Passed, false, result.Latency)

	score := result.Score
	r.events.Publish(core.ProgressEvent{
		Kind:          core.EventTest,
		RunID:         runID,
		MainModel:     req.Main,
		ExecutorModel: req.Executor,
		Test:          p.Name,
		Phase:         p.Phase,
		Index:         index,
		Total:         total,
		Status:        status,
		Score:         &score,
		Message:       result.Details,
	})
}

func (r *Runner) phase(runID string, req Request, phase string, status core.EventStatus, msg string) {
	r.events.Publish(core.ProgressEvent{
		Kind:          core.EventPhase,
		RunID:         runID,
		MainModel:     req.Main,
		ExecutorModel: req.Executor,
		Phase:         phase,
		Status:        status,
		Message:       msg,
	})
}
