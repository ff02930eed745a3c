package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/chat"
	"github.com/snow-ghost/readiness/pkg/logging"
	"github.com/snow-ghost/readiness/policy"
)

const (
	ModeDual   = "dual"
	ModeSingle = "single"
)

// Binding selects the models of a routed turn
type Binding struct {
	Main     string
	Executor string
	Dual     bool
	// Timeout bounds the whole turn; 0 leaves it to the caller's context
	Timeout time.Duration
}

// executor returns the model that executes tools for the binding
func (b Binding) executor() string {
	if b.Executor == "" {
		return b.Main
	}
	return b.Executor
}

// RouteRequest is one conversation turn to route
type RouteRequest struct {
	Messages     []chat.Message
	Tools        []chat.Tool
	SystemPrompt string
	// Capability is checked against level-4 disqualifications and level-3 triggers
	Capability string
}

// RouteResult is the normalized outcome of a routed turn
type RouteResult struct {
	DecidedAction    core.Action
	ChosenTool       string
	ToolCalls        []chat.ToolCall
	MainResponse     string
	ExecutorResponse string
	Mode             string
	Interventions    []policy.Hit
	Latency          time.Duration
}

// Observation returns the classifier view of the result
func (r RouteResult) Observation() core.Observation {
	response := r.MainResponse
	if r.ExecutorResponse != "" {
		response = strings.TrimSpace(response + "\n" + r.ExecutorResponse)
	}
	return core.Observation{
		DecidedAction: r.DecidedAction,
		ChosenTool:    r.ChosenTool,
		Response:      response,
		ToolCalls:     r.ToolCalls,
	}
}

// ProstheticSource supplies the prosthetic config of a model; core.Store satisfies it
type ProstheticSource interface {
	GetProstheticConfig(ctx context.Context, modelID string) (*core.ProstheticConfig, error)
}

// Options configures a Router
type Options struct {
	Prosthetics ProstheticSource
	Logger      *logging.Logger
}

// Router sends a turn to the main model for a decision and forwards tool
// execution to the executor model
type Router struct {
	gateway     core.Gateway
	prosthetics ProstheticSource
	logger      *logging.Logger
}

// NewRouter creates a Router; without a prosthetic source, turns are routed uncompensated
func NewRouter(gateway core.Gateway, opts Options) *Router {
	return &Router{
		gateway:     gateway,
		prosthetics: opts.Prosthetics,
		logger:      logging.OrNop(opts.Logger),
	}
}

// Route routes one turn. Errors are inference failures, context errors, or a
// *core.CapabilityError when the capability is disqualified for a bound model.
func (r *Router) Route(ctx context.Context, b Binding, req RouteRequest) (RouteResult, error) {
	if b.Main == "" {
		return RouteResult{}, fmt.Errorf("%w: main model is required", core.ErrInvalidRequest)
	}
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	start := time.Now()
	mainGuard, err := r.guard(ctx, b.Main, req.Capability)
	if err != nil {
		return RouteResult{}, err
	}
	execGuard := mainGuard
	if b.Dual && b.executor() != b.Main {
		if execGuard, err = r.guard(ctx, b.executor(), req.Capability); err != nil {
			return RouteResult{}, err
		}
	}

	var res RouteResult
	if b.Dual {
		res, err = r.routeDual(ctx, b, req, mainGuard, execGuard)
	} else {
		res, err = r.routeSingle(ctx, b, req, mainGuard)
	}
	res.Latency = time.Since(start)
	if err != nil {
		return res, err
	}

	if len(res.Interventions) > 0 {
		r.logger.Info("tool calls intercepted",
			"main", b.Main,
			"executor", b.executor(),
			"capability", req.Capability,
			"interventions", len(res.Interventions),
		)
	}
	return res, nil
}

func (r *Router) routeDual(ctx context.Context, b Binding, req RouteRequest, mainGuard, execGuard *policy.ToolGuard) (RouteResult, error) {
	res := RouteResult{Mode: ModeDual}

	decideReq := chat.ChatRequest{
		Messages: withSystem(DecisionPrompt(joinPrompt(mainGuard.SystemPrefix(), req.SystemPrompt), req.Tools), req.Messages),
		Metadata: map[string]string{core.MetaStage: core.StageDecide},
	}
	decideResp, err := r.gateway.Chat(ctx, b.Main, decideReq)
	if err != nil {
		return res, fmt.Errorf("main %s: %w", b.Main, err)
	}
	d := ParseDecision(decideResp.Text)
	res.DecidedAction = d.Action
	res.ChosenTool = d.Chosen()
	res.MainResponse = decideResp.Text
	if d.Response != "" {
		res.MainResponse = d.Response
	}

	if !d.Action.RequiresTool() {
		return res, nil
	}

	execReq := chat.ChatRequest{
		Messages: withSystem(ExecutorPrompt(joinPrompt(execGuard.SystemPrefix(), req.SystemPrompt), d), req.Messages),
		Tools:    req.Tools,
		Metadata: map[string]string{
			core.MetaStage:  core.StageExecute,
			"decided_tool":  d.Chosen(),
			"decided_tools": strings.Join(d.Tools, ","),
		},
	}
	execResp, err := r.gateway.Chat(ctx, b.executor(), execReq)
	if err != nil {
		return res, fmt.Errorf("executor %s: %w", b.executor(), err)
	}
	res.ExecutorResponse = execResp.Text
	res.ToolCalls, res.Interventions = execGuard.Filter(execResp.ToolCalls, req.Capability)
	return res, nil
}

func (r *Router) routeSingle(ctx context.Context, b Binding, req RouteRequest, guard *policy.ToolGuard) (RouteResult, error) {
	res := RouteResult{Mode: ModeSingle}

	msgs := req.Messages
	if sys := joinPrompt(guard.SystemPrefix(), req.SystemPrompt); sys != "" {
		msgs = withSystem(sys, msgs)
	}
	resp, err := r.gateway.Chat(ctx, b.Main, chat.ChatRequest{
		Messages: msgs,
		Tools:    req.Tools,
		Metadata: map[string]string{core.MetaStage: core.StageSingle},
	})
	if err != nil {
		return res, fmt.Errorf("model %s: %w", b.Main, err)
	}

	res.MainResponse = resp.Text
	names := chat.ToolNames(resp.ToolCalls)
	switch {
	case len(names) > 1:
		res.DecidedAction = core.ActionMultiStep
	case len(names) == 1:
		res.DecidedAction = core.ActionCallTool
	case strings.HasSuffix(strings.TrimSpace(resp.Text), "?"):
		res.DecidedAction = core.ActionAskClarification
	default:
		res.DecidedAction = core.ActionRespond
	}
	if len(names) > 0 {
		res.ChosenTool = names[0]
	}
	res.ToolCalls, res.Interventions = guard.Filter(resp.ToolCalls, req.Capability)
	return res, nil
}

// guard loads the model's prosthetic config. A missing config or an unreadable
// store yields a pass-through guard; only a disqualification is an error.
func (r *Router) guard(ctx context.Context, model, capability string) (*policy.ToolGuard, error) {
	if r.prosthetics == nil {
		return policy.NewToolGuard(nil), nil
	}
	cfg, err := r.prosthetics.GetProstheticConfig(ctx, model)
	if err != nil {
		if !errors.Is(err, core.ErrModelNotFound) {
			r.logger.Warn("prosthetic lookup failed", "model", model, "error", err)
		}
		return policy.NewToolGuard(nil), nil
	}
	g := policy.NewToolGuard(cfg)
	if err := g.Check(capability); err != nil {
		return nil, err
	}
	return g, nil
}

func joinPrompt(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// withSystem places system first, dropping system messages already present
func withSystem(system string, msgs []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs)+1)
	out = append(out, chat.System(system))
	for _, m := range msgs {
		if m.Role == "system" {
			continue
		}
		out = append(out, m)
	}
	return out
}
