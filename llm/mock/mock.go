package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/chat"
)

// Responder produces the reply of a scripted model
type Responder func(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error)

// Call is one recorded gateway request
type Call struct {
	Model   string
	Stage   string
	Request chat.ChatRequest
}

// Gateway implements core.Gateway with scripted per-model responders
type Gateway struct {
	mu       sync.Mutex
	models   map[string]Responder
	fallback Responder
	calls    []Call
}

var _ core.Gateway = (*Gateway)(nil)

// NewGateway creates an empty scripted gateway
func NewGateway() *Gateway {
	return &Gateway{models: make(map[string]Responder)}
}

// Register scripts a model
func (g *Gateway) Register(model string, r Responder) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.models[model] = r
	return g
}

// SetFallback scripts every unregistered model
func (g *Gateway) SetFallback(r Responder) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = r
	return g
}

// Chat records the call and delegates to the model's responder
func (g *Gateway) Chat(ctx context.Context, model string, req chat.ChatRequest) (chat.ChatResponse, error) {
	g.mu.Lock()
	r, ok := g.models[model]
	if !ok {
		r = g.fallback
	}
	g.calls = append(g.calls, Call{Model: model, Stage: req.Metadata[core.MetaStage], Request: req})
	g.mu.Unlock()

	if r == nil {
		return chat.ChatResponse{}, fmt.Errorf("%w: %s", core.ErrModelNotFound, model)
	}
	if err := ctx.Err(); err != nil {
		return chat.ChatResponse{}, err
	}
	resp, err := r(ctx, req)
	if err != nil {
		return chat.ChatResponse{}, err
	}
	resp.Model = model
	resp.Provider = "mock"
	return resp, nil
}

// Calls returns a copy of the recorded calls
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// CallsFor counts the recorded calls of a model
func (g *Gateway) CallsFor(model string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Model == model {
			n++
		}
	}
	return n
}

// Rule scripts the expected behavior for prompts containing Match
type Rule struct {
	Match  string
	Action core.Action
	Tools  []string
	// Args are the arguments of the first tool call
	Args  map[string]interface{}
	Reply string
}

// Oracle answers every turn as its matching rule expects. The latest user
// message is matched case-insensitively; the first matching rule wins.
func Oracle(rules []Rule) Responder {
	return func(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error) {
		rule, ok := match(rules, LastUser(req.Messages))
		if !ok {
			rule = Rule{Action: core.ActionRespond, Reply: "I'm not sure how to help with that."}
		}
		return render(rule, req.Metadata[core.MetaStage]), nil
	}
}

func match(rules []Rule, prompt string) (Rule, bool) {
	prompt = strings.ToLower(prompt)
	for _, r := range rules {
		if r.Match != "" && strings.Contains(prompt, strings.ToLower(r.Match)) {
			return r, true
		}
	}
	return Rule{}, false
}

func render(rule Rule, stage string) chat.ChatResponse {
	reply := rule.Reply
	if reply == "" {
		if rule.Action == core.ActionAskClarification {
			reply = "Could you tell me more about what you need?"
		} else {
			reply = "Sure."
		}
	}

	if stage == core.StageDecide {
		first := ""
		if len(rule.Tools) > 0 && rule.Action.RequiresTool() {
			first = rule.Tools[0]
		}
		d := map[string]interface{}{"action": rule.Action, "tool": first}
		if rule.Action == core.ActionMultiStep {
			d["tools"] = rule.Tools
		}
		if !rule.Action.RequiresTool() {
			d["response"] = reply
		}
		b, _ := json.Marshal(d)
		return chat.ChatResponse{Text: string(b), FinishReason: "stop"}
	}

	if !rule.Action.RequiresTool() || len(rule.Tools) == 0 {
		return chat.ChatResponse{Text: reply, FinishReason: "stop"}
	}
	tools := rule.Tools[:1]
	if rule.Action == core.ActionMultiStep {
		tools = rule.Tools
	}
	calls := make([]chat.ToolCall, 0, len(tools))
	for i, name := range tools {
		var args map[string]interface{}
		if i == 0 {
			args = rule.Args
		}
		calls = append(calls, chat.NewToolCall(fmt.Sprintf("call_%d", i), name, args))
	}
	return chat.ChatResponse{ToolCalls: calls, FinishReason: "tool_calls"}
}

// Degraded answers like inner except for a deterministic subset of prompts
// (one in every), where it replies without any tool use
func Degraded(inner Responder, every uint32) Responder {
	return func(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error) {
		if every > 0 && hash(LastUser(req.Messages))%every == 0 {
			return chat.ChatResponse{Text: "I can't do that right now.", FinishReason: "stop"}, nil
		}
		return inner(ctx, req)
	}
}

// Slow delays inner by d, returning early with the context error when cancelled
func Slow(inner Responder, d time.Duration) Responder {
	return func(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return chat.ChatResponse{}, ctx.Err()
		case <-t.C:
		}
		return inner(ctx, req)
	}
}

// Text always replies with text and no tool calls
func Text(reply string) Responder {
	return func(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error) {
		return chat.ChatResponse{Text: reply, FinishReason: "stop"}, nil
	}
}

// ToolCalls always proposes the given tools with empty arguments
func ToolCalls(names ...string) Responder {
	return func(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error) {
		calls := make([]chat.ToolCall, 0, len(names))
		for i, n := range names {
			calls = append(calls, chat.NewToolCall(fmt.Sprintf("call_%d", i), n, nil))
		}
		return chat.ChatResponse{ToolCalls: calls, FinishReason: "tool_calls"}, nil
	}
}

// Failing always returns err
func Failing(err error) Responder {
	return func(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error) {
		return chat.ChatResponse{}, err
	}
}

// LastUser returns the content of the latest user message
func LastUser(msgs []chat.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
