package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/llm/mock"
	"github.com/snow-ghost/readiness/pkg/chat"
	"github.com/snow-ghost/readiness/pkg/store"
)

var (
	weather = chat.FunctionTool("get_weather", "Current weather", []string{"location"}, map[string]string{"location": "City"})
	shell   = chat.FunctionTool("execute_shell", "Run a shell command", []string{"command"}, map[string]string{"command": "Command"})

	rules = []mock.Rule{
		{Match: "weather in paris", Action: core.ActionCallTool, Tools: []string{"get_weather"}, Args: map[string]interface{}{"location": "Paris"}},
		{Match: "hello", Action: core.ActionRespond, Reply: "Hi there!"},
		{Match: "book it", Action: core.ActionAskClarification},
	}
)

func turn(prompt string) RouteRequest {
	return RouteRequest{Messages: []chat.Message{chat.User(prompt)}, Tools: []chat.Tool{weather, shell}}
}

func TestParseDecision(t *testing.T) {
	d := ParseDecision(`Sure! {"action": "call_tool", "tool": "get_weather"}`)
	assert.Equal(t, core.ActionCallTool, d.Action)
	assert.Equal(t, "get_weather", d.Chosen())

	d = ParseDecision(`{"action": "multi_step", "tools": ["read_file", "send_email"]`)
	assert.Equal(t, core.ActionMultiStep, d.Action)
	assert.Equal(t, "read_file", d.Chosen())

	d = ParseDecision("Just chatting")
	assert.Equal(t, core.ActionRespond, d.Action)
	assert.Equal(t, "Just chatting", d.Response)

	d = ParseDecision(`{"action": "call_tool"}`)
	assert.Equal(t, core.ActionRespond, d.Action, "a tool action without a tool is a reply")

	d = ParseDecision(`{"action": "clarify", "response": "Which day?"}`)
	assert.Equal(t, core.ActionAskClarification, d.Action)
}

func TestRoute_DualDecidesThenExecutes(t *testing.T) {
	gw := mock.NewGateway().
		Register("planner", mock.Oracle(rules)).
		Register("worker", mock.Oracle(rules))
	r := NewRouter(gw, Options{})

	res, err := r.Route(context.Background(), Binding{Main: "planner", Executor: "worker", Dual: true}, turn("What's the weather in Paris?"))
	require.NoError(t, err)
	assert.Equal(t, ModeDual, res.Mode)
	assert.Equal(t, core.ActionCallTool, res.DecidedAction)
	assert.Equal(t, "get_weather", res.ChosenTool)
	assert.Equal(t, []string{"get_weather"}, chat.ToolNames(res.ToolCalls))

	calls := gw.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "planner", calls[0].Model)
	assert.Equal(t, core.StageDecide, calls[0].Stage)
	assert.Empty(t, calls[0].Request.Tools, "the planner only decides")
	assert.Equal(t, "worker", calls[1].Model)
	assert.Equal(t, core.StageExecute, calls[1].Stage)
	assert.Len(t, calls[1].Request.Tools, 2)
}

func TestRoute_DualRespondSkipsExecutor(t *testing.T) {
	gw := mock.NewGateway().SetFallback(mock.Oracle(rules))
	r := NewRouter(gw, Options{})

	res, err := r.Route(context.Background(), Binding{Main: "m", Executor: "e", Dual: true}, turn("Hello!"))
	require.NoError(t, err)
	assert.Equal(t, core.ActionRespond, res.DecidedAction)
	assert.Equal(t, "Hi there!", res.MainResponse)
	assert.Empty(t, res.ToolCalls)
	assert.Zero(t, gw.CallsFor("e"))
}

func TestRoute_SameModelStillCallsTwice(t *testing.T) {
	gw := mock.NewGateway().Register("m", mock.Oracle(rules))
	r := NewRouter(gw, Options{})

	_, err := r.Route(context.Background(), Binding{Main: "m", Executor: "m", Dual: true}, turn("weather in Paris please"))
	require.NoError(t, err)
	assert.Equal(t, 2, gw.CallsFor("m"))
}

func TestRoute_SingleInfersAction(t *testing.T) {
	gw := mock.NewGateway().Register("m", mock.Oracle(rules))
	r := NewRouter(gw, Options{})
	ctx := context.Background()

	res, err := r.Route(ctx, Binding{Main: "m"}, turn("What's the weather in Paris?"))
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, res.Mode)
	assert.Equal(t, core.ActionCallTool, res.DecidedAction)
	assert.Equal(t, "get_weather", res.ChosenTool)

	res, err = r.Route(ctx, Binding{Main: "m"}, turn("Book it"))
	require.NoError(t, err)
	assert.Equal(t, core.ActionAskClarification, res.DecidedAction)
}

func TestRoute_Errors(t *testing.T) {
	gw := mock.NewGateway().Register("m", mock.Failing(errors.New("connection refused")))
	r := NewRouter(gw, Options{})

	_, err := r.Route(context.Background(), Binding{}, turn("hi"))
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = r.Route(context.Background(), Binding{Main: "m", Dual: true}, turn("hi"))
	assert.ErrorContains(t, err, "connection refused")

	gw.Register("slow", mock.Slow(mock.Text("late"), time.Second))
	_, err = r.Route(context.Background(), Binding{Main: "slow", Timeout: 10 * time.Millisecond}, turn("hi"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRoute_AppliesProsthetics(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.SaveProstheticConfig(ctx, core.ProstheticConfig{
		ModelID: "weak",
		Levels: []core.Level{
			core.Advisory{Capability: "General Instruction Following", Text: "Double-check tool names."},
			core.Intervention{Trigger: "shell", Action: core.InterventionBlock, Message: "no shell"},
			core.Disqualification{Capability: "File Operations"},
		},
	}))

	gw := mock.NewGateway().Register("weak", mock.ToolCalls("execute_shell", "get_weather"))
	r := NewRouter(gw, Options{Prosthetics: s})

	res, err := r.Route(ctx, Binding{Main: "weak"}, turn("do things"))
	require.NoError(t, err)
	assert.Equal(t, []string{"get_weather"}, chat.ToolNames(res.ToolCalls))
	require.Len(t, res.Interventions, 1)
	assert.Equal(t, "execute_shell", res.Interventions[0].Call.Name())
	assert.Equal(t, core.ActionMultiStep, res.DecidedAction, "the decision reflects what the model proposed")

	sent := gw.Calls()[0].Request.Messages
	require.NotEmpty(t, sent)
	assert.Equal(t, "system", sent[0].Role)
	assert.Contains(t, sent[0].Content, "Double-check tool names.")

	req := turn("read the file")
	req.Capability = "File Operations"
	_, err = r.Route(ctx, Binding{Main: "weak"}, req)
	assert.ErrorIs(t, err, core.ErrCapabilityUnavailable)
	assert.Len(t, gw.Calls(), 1, "a disqualified capability is never attempted")

	// evaluation routers run uncompensated
	res, err = NewRouter(gw, Options{}).Route(ctx, Binding{Main: "weak"}, req)
	require.NoError(t, err)
	assert.Len(t, res.ToolCalls, 2)
}

func TestObservation(t *testing.T) {
	res := RouteResult{DecidedAction: core.ActionCallTool, ChosenTool: "x", MainResponse: "a", ExecutorResponse: "b"}
	obs := res.Observation()
	assert.Equal(t, "a\nb", obs.Response)
	assert.Equal(t, "x", obs.ChosenTool)
}
