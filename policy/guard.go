package policy

import (
	"strings"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/chat"
)

// ToolGuard enforces a model's prosthetic configuration on routed turns
type ToolGuard struct {
	cfg core.ProstheticConfig
}

// Hit is an intervention that matched a tool call
type Hit struct {
	Call chat.ToolCall
	Rule core.Intervention
}

// NewToolGuard builds a guard; a nil config yields a pass-through guard
func NewToolGuard(cfg *core.ProstheticConfig) *ToolGuard {
	g := &ToolGuard{}
	if cfg != nil {
		g.cfg = *cfg
	}
	return g
}

// SystemPrefix renders level-1 advisories then level-2 constraints, one per line
func (g *ToolGuard) SystemPrefix() string {
	var b strings.Builder
	for _, text := range g.cfg.Advisories() {
		b.WriteString(text)
		b.WriteByte('\n')
	}
	for _, text := range g.cfg.Constraints() {
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}

// Check refuses capabilities disqualified at level 4
func (g *ToolGuard) Check(capability string) error {
	if capability == "" {
		return nil
	}
	for _, d := range g.cfg.Disqualifications() {
		if strings.EqualFold(d, capability) {
			return &core.CapabilityError{Model: g.cfg.ModelID, Capability: capability}
		}
	}
	return nil
}

// Filter applies level-3 interventions to proposed tool calls. Calls matched by a
// block rule are dropped; warn matches are kept. Every match is reported.
func (g *ToolGuard) Filter(calls []chat.ToolCall, capability string) ([]chat.ToolCall, []Hit) {
	rules := g.cfg.Interventions()
	if len(rules) == 0 {
		return calls, nil
	}

	capLower := strings.ToLower(capability)
	kept := make([]chat.ToolCall, 0, len(calls))
	var hits []Hit
	for _, call := range calls {
		blocked := false
		for _, rule := range rules {
			if !matches(rule, capLower, strings.ToLower(call.Name())) {
				continue
			}
			hits = append(hits, Hit{Call: call, Rule: rule})
			if rule.Action == core.InterventionBlock {
				blocked = true
			}
		}
		if !blocked {
			kept = append(kept, call)
		}
	}
	return kept, hits
}

func matches(rule core.Intervention, capLower, toolLower string) bool {
	trigger := strings.ToLower(rule.Trigger)
	if trigger == "" {
		return false
	}
	return trigger == capLower || strings.Contains(toolLower, trigger)
}
