package combo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/intent"
	"github.com/snow-ghost/readiness/pkg/chat"
	"github.com/snow-ghost/readiness/pkg/logging"
	"github.com/snow-ghost/readiness/pkg/metrics"
	"github.com/snow-ghost/readiness/pkg/tokens"
	"github.com/snow-ghost/readiness/pkg/tracing"
	"github.com/snow-ghost/readiness/policy"
	"github.com/snow-ghost/readiness/residency"
	"github.com/snow-ghost/readiness/testkit"
)

const (
	DefaultTaskTimeout         = 5 * time.Second
	DefaultMaxTimeoutsPerCombo = 2

	suite = "combo"
)

// Options configures a Tester. Zero values select the defaults.
type Options struct {
	Cases               []core.TestCase
	TaskTimeout         time.Duration
	MaxTimeoutsPerCombo int

	Loader      *residency.Loader
	Store       core.Store
	Broadcaster core.Broadcaster
	Tokens      *tokens.EncoderRegistry
	Logger      *logging.Logger
	Metrics     *metrics.PrometheusMetrics
	Tracer      *tracing.Tracer
}

// Tester drives the combo matrix across (main, executor) pairs.
// Tests run sequentially; one Tester must not run matrices concurrently.
type Tester struct {
	router      testkit.Router
	cases       []core.TestCase
	timeout     time.Duration
	maxTimeouts int
	racer       *policy.Racer

	loader  *residency.Loader
	store   core.Store
	events  core.Broadcaster
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
}

// NewTester creates a Tester routing every test through router
func NewTester(router testkit.Router, opts Options) *Tester {
	t := &Tester{
		router:      router,
		cases:       opts.Cases,
		timeout:     opts.TaskTimeout,
		maxTimeouts: opts.MaxTimeoutsPerCombo,
		loader:      opts.Loader,
		store:       opts.Store,
		events:      opts.Broadcaster,
		logger:      logging.OrNop(opts.Logger),
		metrics:     metrics.OrDiscard(opts.Metrics),
		tracer:      tracing.OrNop(opts.Tracer),
	}
	if len(t.cases) == 0 {
		t.cases = testkit.Matrix()
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTaskTimeout
	}
	if t.maxTimeouts <= 0 {
		t.maxTimeouts = DefaultMaxTimeoutsPerCombo
	}
	if t.events == nil {
		t.events = core.NopBroadcaster{}
	}
	t.racer = policy.NewRacer(func() {
		t.metrics.RecordLateResult()
		t.logger.Debug("discarded late test result")
	})
	if t.loader != nil && opts.Tokens != nil {
		t.loader.FitPrompts(MaxPromptTokens(opts.Tokens, t.cases))
	}
	return t
}

// MaxPromptTokens returns the largest token count of a case's decision turn
func MaxPromptTokens(reg *tokens.EncoderRegistry, cases []core.TestCase) int {
	highest := 0
	for _, tc := range cases {
		msgs := []chat.Message{
			chat.System(intent.DecisionPrompt("", tc.Tools)),
			chat.User(tc.Prompt),
		}
		n, err := reg.CountMessages("", msgs)
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// Cases returns the matrix the Tester runs
func (t *Tester) Cases() []core.TestCase {
	return append([]core.TestCase(nil), t.cases...)
}

// RunAll runs every (main, executor) pair in main-major order and returns the
// scores sorted by overall score. The first combo of a main model with a
// timed-out test excludes that main from the rest of the batch. Per-test and
// per-pair failures lower scores; nothing aborts the batch.
func (t *Tester) RunAll(ctx context.Context, mains, executors []string) []core.ComboScore {
	runID := uuid.NewString()
	logger := t.logger.WithRunID(runID)
	total := len(mains) * len(executors)
	excluded := make(map[string]bool)
	scores := make([]core.ComboScore, 0, total)

	index := 0
	for _, main := range mains {
		for _, executor := range executors {
			index++
			if ctx.Err() != nil {
				t.publishCombo(runID, main, executor, index, total, core.StatusCancelled, nil)
				logger.Warn("combo batch cancelled", "completed", index-1, "total", total)
				core.SortCombos(scores)
				return scores
			}

			var score core.ComboScore
			if excluded[main] {
				score = t.excludedScore(main, executor)
				t.events.Publish(core.ProgressEvent{
					Kind:          core.EventExclusion,
					RunID:         runID,
					MainModel:     main,
					ExecutorModel: executor,
					Index:         index,
					Total:         total,
					Status:        core.StatusExcluded,
					Message:       fmt.Sprintf("main model %s excluded after a timeout", main),
				})
			} else {
				score = t.runCombo(ctx, runID, main, executor, index, total)
				if score.TimedOutTests > 0 {
					excluded[main] = true
					t.metrics.RecordExclusion(main)
					logger.LogExclusion(ctx, main, fmt.Sprintf("%d timed-out tests with executor %s", score.TimedOutTests, executor))
				}
			}

			t.persist(ctx, score)
			scores = append(scores, score)
		}
	}

	core.SortCombos(scores)
	return scores
}

// RunCombo runs the matrix for a single pair, without cross-pair exclusion
func (t *Tester) RunCombo(ctx context.Context, main, executor string) core.ComboScore {
	score := t.runCombo(ctx, uuid.NewString(), main, executor, 1, 1)
	t.persist(ctx, score)
	return score
}

func (t *Tester) runCombo(ctx context.Context, runID, main, executor string, index, total int) core.ComboScore {
	ctx, span := t.tracer.StartComboSpan(ctx, runID, main, executor)
	defer span.End()

	if t.loader != nil {
		if err := t.loader.EnsurePair(ctx, main, executor); err != nil {
			// the tests still run; an unservable model fails them individually
			t.logger.Warn("model residency incomplete", "main", main, "executor", executor, "error", err)
		}
	}
	t.publishCombo(runID, main, executor, index, total, core.StatusRunning, nil)

	results := make([]core.TestResult, 0, len(t.cases))
	timeouts := 0
	for i, tc := range t.cases {
		var result core.TestResult
		switch {
		case ctx.Err() != nil:
			result = skippedResult(tc, "cancelled")
		case timeouts >= t.maxTimeouts:
			result = skippedResult(tc, "skipped after repeated timeouts")
		default:
			result = t.runTest(ctx, main, executor, tc)
			if result.TimedOut {
				timeouts++
				t.metrics.RecordTimeout(main)
			}
		}
		results = append(results, result)
		t.recordTest(ctx, runID, main, executor, tc, result, i+1)
	}

	score := core.ScoreCombo(main, executor, results)
	score.TestedAt = time.Now()
	t.metrics.RecordCombo(main, executor, score.OverallScore)
	tracing.AddSpanAttributes(span, map[string]interface{}{
		"combo.overall":   score.OverallScore,
		"combo.timeouts":  score.TimedOutTests,
		"combo.skipped":   score.SkippedTests,
		"combo.cancelled": ctx.Err() != nil,
	})

	status := core.StatusCompleted
	if ctx.Err() != nil {
		status = core.StatusCancelled
	}
	overall := score.OverallScore
	t.publishCombo(runID, main, executor, index, total, status, &overall)
	return score
}

func (t *Tester) runTest(ctx context.Context, main, executor string, tc core.TestCase) core.TestResult {
	ctx, span := t.tracer.StartTestSpan(ctx, tc.ID, string(tc.Category))
	defer span.End()

	binding := intent.Binding{Main: main, Executor: executor, Dual: true, Timeout: t.timeout}
	req := intent.RouteRequest{
		Messages: []chat.Message{chat.User(tc.Prompt)},
		Tools:    tc.Tools,
	}

	start := time.Now()
	v, err := t.racer.Run(ctx, t.timeout, func(ctx context.Context) (interface{}, error) {
		return t.router.Route(ctx, binding, req)
	})
	result := core.TestResult{
		TestID:       tc.ID,
		Category:     tc.Category,
		Tier:         tc.Tier,
		RequiresTool: tc.ExpectedAction.RequiresTool(),
		Latency:      time.Since(start),
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		result.Skipped = true
		result.Error = "cancelled"
		return result
	case errors.Is(err, core.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		result.TimedOut = true
		result.Error = fmt.Sprintf("timed out after %s", t.timeout)
		tracing.RecordSpanError(span, core.ErrTimeout)
		return result
	default:
		result.Error = err.Error()
		tracing.RecordSpanError(span, err)
		return result
	}

	res := v.(intent.RouteResult)
	j := core.JudgeAction(tc, res.Observation())
	result.Passed = j.Passed
	result.MainCorrect = j.MainCorrect
	result.ExecutorCorrect = j.ExecutorCorrect
	result.Details = j.Details
	result.DecidedAction = res.DecidedAction
	result.ChosenTool = res.ChosenTool
	result.ToolsInvoked = chat.ToolNames(res.ToolCalls)
	tracing.RecordSpanSuccess(span)
	return result
}

func (t *Tester) recordTest(ctx context.Context, runID, main, executor string, tc core.TestCase, r core.TestResult, index int) {
	status := core.StatusCompleted
	label := "passed"
	switch {
	case r.Skipped:
		status, label = core.StatusCancelled, "skipped"
	case r.TimedOut:
		status, label = core.StatusTimeout, "timeout"
	case r.Error != "":
		status, label = core.StatusError, "error"
	case !r.Passed:
		label = "failed"
	}
	t.metrics.RecordTest(suite, string(tc.Category), label)
	if !r.Skipped {
		t.logger.LogTestResult(ctx, main, executor, tc.ID, r.Passed, r.TimedOut, r.Latency)
	}

	score := 0
	if r.Passed {
		score = 100
	}
	t.events.Publish(core.ProgressEvent{
		Kind:          core.EventTest,
		RunID:         runID,
		MainModel:     main,
		ExecutorModel: executor,
		Test:          tc.Name,
		Index:         index,
		Total:         len(t.cases),
		Status:        status,
		Score:         &score,
		Message:       firstNonEmpty(r.Error, r.Details),
	})
}

func (t *Tester) publishCombo(runID, main, executor string, index, total int, status core.EventStatus, score *int) {
	t.events.Publish(core.ProgressEvent{
		Kind:          core.EventCombo,
		RunID:         runID,
		MainModel:     main,
		ExecutorModel: executor,
		Index:         index,
		Total:         total,
		Status:        status,
		Score:         score,
	})
}

// excludedScore is the zero-score row of a pairing never executed
func (t *Tester) excludedScore(main, executor string) core.ComboScore {
	results := make([]core.TestResult, 0, len(t.cases))
	for _, tc := range t.cases {
		results = append(results, skippedResult(tc, "main model excluded"))
	}
	score := core.ScoreCombo(main, executor, results)
	score.MainExcluded = true
	score.TestedAt = time.Now()
	return score
}

func (t *Tester) persist(ctx context.Context, score core.ComboScore) {
	if t.store == nil {
		return
	}
	// a cancelled batch still records what it measured
	if err := t.store.SaveComboScore(context.WithoutCancel(ctx), score); err != nil {
		t.logger.LogPersistenceFailure(ctx, "save_combo_score", score.Key(), err)
	}
}

func skippedResult(tc core.TestCase, reason string) core.TestResult {
	return core.TestResult{
		TestID:       tc.ID,
		Category:     tc.Category,
		Tier:         tc.Tier,
		RequiresTool: tc.ExpectedAction.RequiresTool(),
		Skipped:      true,
		Details:      reason,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
