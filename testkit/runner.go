package testkit

import (
	"context"
	"time"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/intent"
)

// Router routes one turn; implemented by intent.Router
type Router interface {
	Route(ctx context.Context, b intent.Binding, req intent.RouteRequest) (intent.RouteResult, error)
}

// Runner executes probes through a Router and classifies the outcome
type Runner struct {
	router Router
}

func NewRunner(router Router) *Runner { return &Runner{router: router} }

// RunProbe routes the probe's conversation and applies its classifier. An
// inference error scores the probe 0 with the error recorded.
func (r *Runner) RunProbe(ctx context.Context, b intent.Binding, p Probe) (core.ProbeResult, intent.RouteResult) {
	start := time.Now()
	res, err := r.router.Route(ctx, b, intent.RouteRequest{Messages: p.Messages, Tools: p.Tools})
	result := core.ProbeResult{
		Probe:    p.ID,
		Category: p.Category,
		Phase:    p.Phase,
		Latency:  time.Since(start),
	}
	if err != nil {
		result.Error = err.Error()
		result.Details = "inference failed"
		return result, res
	}

	v := p.Classifier.Evaluate(res.Observation())
	result.Passed = v.Passed
	result.Score = v.Score
	result.Details = v.Details
	return result, res
}
