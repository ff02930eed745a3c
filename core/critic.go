package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/snow-ghost/readiness/pkg/chat"
)

// Judgement is the per-test attribution of a routed turn
type Judgement struct {
	Passed          bool
	MainCorrect     bool
	ExecutorCorrect bool
	Details         string
}

// JudgeAction applies the expected-action contract of the case to an observation.
func JudgeAction(tc TestCase, obs Observation) Judgement {
	invoked := chat.ToolNames(obs.ToolCalls)
	j := Judgement{
		MainCorrect:     mainCorrect(tc, obs),
		ExecutorCorrect: containsAny(invoked, tc.ExpectedTools),
	}

	switch tc.ExpectedAction {
	case ActionRespond:
		if hit := firstOf(invoked, tc.ForbiddenTools); hit != "" {
			j.Details = fmt.Sprintf("forbidden tool %s invoked", hit)
			return j
		}
		if len(invoked) > 0 {
			j.Details = fmt.Sprintf("expected no tool call, got %s", strings.Join(invoked, ","))
			return j
		}
		j.Passed = true

	case ActionAskClarification:
		if len(invoked) > 0 {
			j.Details = fmt.Sprintf("expected clarification, got %s", strings.Join(invoked, ","))
			return j
		}
		if obs.DecidedAction != ActionRespond && obs.DecidedAction != ActionAskClarification {
			j.Details = fmt.Sprintf("decided %s", obs.DecidedAction)
			return j
		}
		j.Passed = true

	case ActionCallTool:
		want := first(tc.ExpectedTools)
		switch {
		case obs.DecidedAction != ActionCallTool:
			j.Details = fmt.Sprintf("decided %s, expected call_tool", obs.DecidedAction)
		case obs.ChosenTool != want:
			j.Details = fmt.Sprintf("chose %q, expected %q", obs.ChosenTool, want)
		case !contains(invoked, want):
			j.Details = fmt.Sprintf("executor did not invoke %s", want)
		default:
			if ok, why := ParamsMatch(callFor(obs.ToolCalls, want), tc.ExpectedParams); !ok {
				j.Details = why
				return j
			}
			j.Passed = true
		}

	case ActionMultiStep:
		multi := obs.DecidedAction == ActionMultiStep || len(invoked) > 1
		switch {
		case !multi:
			j.Details = "multi-step need not recognized"
		case len(invoked) == 0:
			j.Details = "no tool invoked"
		case !contains(tc.ExpectedTools, invoked[0]):
			j.Details = fmt.Sprintf("first tool %s not in %v", invoked[0], tc.ExpectedTools)
		default:
			j.Passed = true
		}

	default:
		j.Details = fmt.Sprintf("unknown expected action %q", tc.ExpectedAction)
	}
	return j
}

func mainCorrect(tc TestCase, obs Observation) bool {
	switch tc.ExpectedAction {
	case ActionRespond:
		return obs.DecidedAction == ActionRespond
	case ActionAskClarification:
		return obs.DecidedAction == ActionRespond || obs.DecidedAction == ActionAskClarification
	case ActionCallTool:
		return obs.DecidedAction.RequiresTool() && obs.ChosenTool == first(tc.ExpectedTools)
	case ActionMultiStep:
		return obs.DecidedAction.RequiresTool() && contains(tc.ExpectedTools, obs.ChosenTool)
	}
	return false
}

// ParseArguments decodes tool-call arguments, repairing malformed JSON when needed
func ParseArguments(raw string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}
	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("repair tool arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(fixed), &args); err != nil {
		return nil, fmt.Errorf("decode repaired tool arguments: %w", err)
	}
	return args, nil
}

// ParamsMatch checks every expected parameter against the call's arguments.
// Strings match by case-insensitive equality after trimming, also accepting a
// trailing comma-separated qualifier ("Paris, France" for "Paris"). Other
// values match by formatted equality.
func ParamsMatch(call *chat.ToolCall, expected map[string]interface{}) (bool, string) {
	if len(expected) == 0 {
		return true, ""
	}
	if call == nil || call.Function == nil {
		return false, "no call to check parameters against"
	}
	args, err := ParseArguments(call.Function.Arguments)
	if err != nil {
		return false, err.Error()
	}
	for key, want := range expected {
		got, ok := args[key]
		if !ok {
			return false, fmt.Sprintf("missing parameter %q", key)
		}
		if ws, isStr := want.(string); isStr {
			if !stringParamMatches(fmt.Sprint(got), ws) {
				return false, fmt.Sprintf("parameter %q = %v, want %q", key, got, ws)
			}
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false, fmt.Sprintf("parameter %q = %v, want %v", key, got, want)
		}
	}
	return true, ""
}

func stringParamMatches(got, want string) bool {
	g, w := normalizeParam(got), normalizeParam(want)
	if g == w {
		return true
	}
	head, _, qualified := strings.Cut(g, ",")
	return qualified && strings.TrimSpace(head) == w
}

func normalizeParam(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "./")
	return strings.TrimRight(s, ". ")
}

func callFor(calls []chat.ToolCall, name string) *chat.ToolCall {
	for i := range calls {
		if calls[i].Name() == name {
			return &calls[i]
		}
	}
	return nil
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsAny(s, wanted []string) bool {
	return firstOf(s, wanted) != ""
}

func firstOf(s, wanted []string) string {
	for _, x := range s {
		if contains(wanted, x) {
			return x
		}
	}
	return ""
}
