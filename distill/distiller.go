// Package distill transfers behavioral patterns from a strong teacher model
// to a weaker student model through a synthesized prosthetic prompt.
package distill

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/intent"
	"github.com/snow-ghost/readiness/pkg/chat"
	"github.com/snow-ghost/readiness/pkg/logging"
	"github.com/snow-ghost/readiness/pkg/metrics"
	"github.com/snow-ghost/readiness/pkg/tracing"
	"github.com/snow-ghost/readiness/testkit"
)

const (
	DefaultSuccessThreshold = 70
	DefaultCaseTimeout      = 30 * time.Second

	phaseTeacher = "teacher"
	phaseBefore  = "student_before"
	phaseAfter   = "student_after"
)

type Options struct {
	// SuccessThreshold is the case score a teacher run needs for its patterns to count
	SuccessThreshold int
	CaseTimeout      time.Duration
	// Cases overrides testkit.DistillationCases
	Cases func(capability string) []testkit.DistillCase

	Store       core.Store
	Broadcaster core.Broadcaster
	Logger      *logging.Logger
	Metrics     *metrics.PrometheusMetrics
	Tracer      *tracing.Tracer
}

// Distiller runs one attempt at a time, strictly sequentially
type Distiller struct {
	router    testkit.Router
	threshold int
	timeout   time.Duration
	cases     func(string) []testkit.DistillCase

	store   core.Store
	events  core.Broadcaster
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
}

func NewDistiller(router testkit.Router, opts Options) *Distiller {
	d := &Distiller{
		router:    router,
		threshold: opts.SuccessThreshold,
		timeout:   opts.CaseTimeout,
		cases:     opts.Cases,
		store:     opts.Store,
		events:    opts.Broadcaster,
		logger:    logging.OrNop(opts.Logger),
		metrics:   metrics.OrDiscard(opts.Metrics),
		tracer:    tracing.OrNop(opts.Tracer),
	}
	if d.threshold <= 0 {
		d.threshold = DefaultSuccessThreshold
	}
	if d.timeout <= 0 {
		d.timeout = DefaultCaseTimeout
	}
	if d.cases == nil {
		d.cases = testkit.DistillationCases
	}
	if d.events == nil {
		d.events = core.NopBroadcaster{}
	}
	return d
}

// caseRun is one model's transcript of one case
type caseRun struct {
	id      string
	score   int
	invoked []string
	details string
}

// Distill runs teacher, student before, and student after the prosthetic.
// Failures are reported in the result; nothing is returned as an error.
func (d *Distiller) Distill(ctx context.Context, teacher, student, capability string) core.DistillationResult {
	runID := uuid.NewString()
	logger := d.logger.WithRunID(runID)
	ctx, span := d.tracer.StartDistillSpan(ctx, teacher, student, capability)
	defer span.End()

	result := core.DistillationResult{
		TeacherModel: teacher,
		StudentModel: student,
		Capability:   capability,
		Patterns:     []core.Pattern{},
	}

	cases := d.cases(capability)
	if len(cases) == 0 {
		result.Message = fmt.Sprintf("no test cases for capability %q", capability)
		d.finish(runID, &result)
		return result
	}

	teacherRuns := d.runAll(ctx, runID, phaseTeacher, teacher, cases, "")
	result.TeacherScore = mean(teacherRuns)
	var patterns []core.Pattern
	for _, r := range teacherRuns {
		if r.score >= d.threshold {
			patterns = append(patterns, ExtractPatterns(r.id, r.invoked)...)
		}
	}
	result.Patterns = Dedupe(patterns)

	result.StudentBefore = mean(d.runAll(ctx, runID, phaseBefore, student, cases, ""))
	if len(result.Patterns) == 0 {
		result.Message = "Teacher produced no extractable patterns"
		logger.Warn("distillation not viable", "teacher", teacher, "capability", capability, "error", core.ErrNoPatterns)
		d.finish(runID, &result)
		return result
	}

	result.Level = LevelFor(result.StudentBefore)
	result.Prosthetic = Render(capability, result.Level, result.Patterns)
	entry := core.ProstheticEntry{
		ModelID:    student,
		Capability: capability,
		Prompt:     result.Prosthetic,
		Level:      result.Level,
		Source:     "distill:" + teacher,
		UpdatedAt:  time.Now(),
	}
	d.save(ctx, entry)

	result.StudentAfter = mean(d.runAll(ctx, runID, phaseAfter, student, cases, result.Prosthetic))
	result.Improvement = result.StudentAfter - result.StudentBefore
	result.Success = result.Improvement > 0

	if result.Success {
		entry.Verified = true
		entry.CategoryImprovements = map[string]int{capability: result.Improvement}
		entry.UpdatedAt = time.Now()
		d.save(ctx, entry)
		result.Message = fmt.Sprintf("Student improved by %d points", result.Improvement)
	} else {
		result.Message = fmt.Sprintf("Student did not improve (before %d, after %d)", result.StudentBefore, result.StudentAfter)
	}

	d.metrics.RecordDistill(teacher, student, capability, result.Improvement)
	tracing.AddSpanAttributes(span, map[string]interface{}{
		"distill.teacher_score": result.TeacherScore,
		"distill.before":        result.StudentBefore,
		"distill.after":         result.StudentAfter,
		"distill.level":         result.Level,
	})
	logger.Info("distillation finished",
		"teacher", teacher,
		"student", student,
		"capability", capability,
		"before", result.StudentBefore,
		"after", result.StudentAfter,
		"success", result.Success,
	)
	d.finish(runID, &result)
	return result
}

func (d *Distiller) runAll(ctx context.Context, runID, phase, model string, cases []testkit.DistillCase, prosthetic string) []caseRun {
	d.events.Publish(core.ProgressEvent{
		Kind:      core.EventDistill,
		RunID:     runID,
		MainModel: model,
		Phase:     phase,
		Total:     len(cases),
		Status:    core.StatusRunning,
	})
	runs := make([]caseRun, 0, len(cases))
	for i, c := range cases {
		r := d.runCase(ctx, model, c, prosthetic)
		runs = append(runs, r)

		score := r.score
		d.events.Publish(core.ProgressEvent{
			Kind:      core.EventTest,
			RunID:     runID,
			MainModel: model,
			Test:      c.ID,
			Phase:     phase,
			Index:     i + 1,
			Total:     len(cases),
			Status:    core.StatusCompleted,
			Score:     &score,
			Message:   r.details,
		})
	}
	return runs
}

// runCase scores the ordered tool sequence of one case; an inference error scores 0
func (d *Distiller) runCase(ctx context.Context, model string, c testkit.DistillCase, prosthetic string) caseRun {
	b := intent.Binding{Main: model, Timeout: d.timeout}
	res, err := d.router.Route(ctx, b, intent.RouteRequest{
		Messages:     []chat.Message{chat.User(c.Prompt)},
		Tools:        c.Tools,
		SystemPrompt: prosthetic,
	})
	if err != nil {
		return caseRun{id: c.ID, details: err.Error()}
	}
	invoked := chat.ToolNames(res.ToolCalls)
	return caseRun{
		id:      c.ID,
		score:   testkit.SequenceScore(c.ExpectedTools, invoked),
		invoked: invoked,
	}
}

func (d *Distiller) save(ctx context.Context, entry core.ProstheticEntry) {
	if d.store == nil {
		return
	}
	if err := d.store.SaveProsthetic(ctx, entry); err != nil {
		d.logger.LogPersistenceFailure(ctx, "save_prosthetic", entry.ModelID+"/"+entry.Capability, err)
	}
}

func (d *Distiller) finish(runID string, result *core.DistillationResult) {
	status := core.StatusCompleted
	if !result.Success {
		status = core.StatusFailed
	}
	d.events.Publish(core.ProgressEvent{
		Kind:          core.EventDistill,
		RunID:         runID,
		MainModel:     result.StudentModel,
		ExecutorModel: result.TeacherModel,
		Status:        status,
		Message:       result.Message,
	})
}

func mean(runs []caseRun) int {
	scores := make([]int, 0, len(runs))
	for _, r := range runs {
		scores = append(scores, r.score)
	}
	return core.Mean(scores)
}
