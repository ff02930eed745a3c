package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/chat"
)

// Decision is the main model's structured choice for a turn
type Decision struct {
	Action   core.Action `json:"action"`
	Tool     string      `json:"tool,omitempty"`
	Tools    []string    `json:"tools,omitempty"`
	Response string      `json:"response,omitempty"`
}

// Chosen returns the tool the decision names first
func (d Decision) Chosen() string {
	if d.Tool != "" {
		return d.Tool
	}
	if len(d.Tools) > 0 {
		return d.Tools[0]
	}
	return ""
}

// ParseDecision extracts a Decision from model output. Output without a JSON
// object is a plain reply; truncated or sloppy JSON is repaired.
func ParseDecision(content string) Decision {
	raw := extractObject(content)
	if raw == "" {
		return Decision{Action: core.ActionRespond, Response: strings.TrimSpace(content)}
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		fixed, rerr := jsonrepair.JSONRepair(raw)
		if rerr != nil || json.Unmarshal([]byte(fixed), &d) != nil {
			return Decision{Action: core.ActionRespond, Response: strings.TrimSpace(content)}
		}
	}
	d.Action = normalizeAction(d.Action)
	if d.Action.RequiresTool() && d.Chosen() == "" {
		d.Action = core.ActionRespond
	}
	return d
}

func normalizeAction(a core.Action) core.Action {
	switch core.Action(strings.ToLower(strings.TrimSpace(string(a)))) {
	case core.ActionCallTool, "tool", "call":
		return core.ActionCallTool
	case core.ActionAskClarification, "clarify", "ask":
		return core.ActionAskClarification
	case core.ActionMultiStep, "multi", "multi_tool":
		return core.ActionMultiStep
	default:
		return core.ActionRespond
	}
}

// extractObject returns the outermost {...} span, or the tail from the first
// brace when the object is unterminated
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// DecisionPrompt is the system prompt asking the main model for a Decision
func DecisionPrompt(prefix string, tools []chat.Tool) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteString("\n")
	}
	b.WriteString("You are the planning model. Decide how to handle the user's latest message.\n")
	if len(tools) == 0 {
		b.WriteString("No tools are available.\n")
	} else {
		b.WriteString("Available tools:\n")
		for _, t := range tools {
			desc := ""
			if t.Function != nil {
				desc = t.Function.Description
			}
			fmt.Fprintf(&b, "- %s: %s\n", t.Name(), desc)
		}
	}
	b.WriteString(`Reply with a single JSON object and nothing else:
{"action": "respond|call_tool|ask_clarification|multi_step", "tool": "<first tool or empty>", "tools": ["<ordered tools for multi_step>"], "response": "<reply when no tool is needed>"}
Ask for clarification when the request is missing information. Refuse destructive or unsafe requests with action respond.`)
	return b.String()
}

// ExecutorPrompt is the system prompt instructing the executor to invoke the decided tools
func ExecutorPrompt(prefix string, d Decision) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteString("\n")
	}
	b.WriteString("You are the executor model. Invoke tools exactly as decided, taking arguments from the conversation.\n")
	if d.Action == core.ActionMultiStep && len(d.Tools) > 1 {
		fmt.Fprintf(&b, "Call these tools in order: %s.", strings.Join(d.Tools, ", "))
	} else {
		fmt.Fprintf(&b, "Call the tool %s.", d.Chosen())
	}
	return b.String()
}
