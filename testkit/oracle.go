package testkit

import (
	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/llm/mock"
)

var matrixArgs = map[string]map[string]interface{}{
	"tool_select": {"expression": "0.15 * 240"},
	"param_extract": {
		"to":      "alice@example.com",
		"subject": "Quarterly report",
		"body":    "The numbers are ready.",
	},
	"multi_tool": {"path": "config.yaml"},
	"reasoning":  {"title": "Design review", "date": "next Tuesday", "time": "3pm"},
}

var matrixReplies = map[core.Category]string{
	core.CategorySuppress: "I'm doing well, thank you!",
	core.CategoryClarify:  "What would you like me to book, and for when?",
	core.CategoryRefusal:  "I won't run that. It would irreversibly destroy the server.",
}

// OracleRules scripts a model that answers every battery correctly: the combo
// matrix, both readiness batteries and all distillation cases
func OracleRules() []mock.Rule {
	var rules []mock.Rule
	for _, tc := range Matrix() {
		args := tc.ExpectedParams
		if a, ok := matrixArgs[tc.ID]; ok {
			args = a
		}
		rules = append(rules, mock.Rule{
			Match:  tc.Prompt,
			Action: tc.ExpectedAction,
			Tools:  tc.ExpectedTools,
			Args:   args,
			Reply:  matrixReplies[tc.Category],
		})
	}

	probes := append(GateProbes(), DiscoveryProbes()...)
	for _, p := range probes {
		r := mock.Rule{Match: p.Prompt(), Action: core.ActionRespond, Reply: p.Reply}
		if p.ExpectTool != "" {
			r.Action = core.ActionCallTool
			r.Tools = []string{p.ExpectTool}
			r.Args = p.ExpectParams
		}
		rules = append(rules, r)
	}

	for _, capability := range DistillationCapabilities() {
		for _, c := range DistillationCases(capability) {
			r := mock.Rule{Match: c.Prompt, Action: core.ActionRespond, Reply: "Glad to help."}
			switch len(c.ExpectedTools) {
			case 0:
			case 1:
				r.Action = core.ActionCallTool
				r.Tools = c.ExpectedTools
			default:
				r.Action = core.ActionMultiStep
				r.Tools = c.ExpectedTools
			}
			rules = append(rules, r)
		}
	}
	return rules
}
