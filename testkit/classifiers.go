package testkit

import (
	"fmt"
	"strings"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/chat"
)

func verdict(passed bool, details string) core.Verdict {
	score := 0
	if passed {
		score = 100
	}
	return core.Verdict{Passed: passed, Score: score, Details: details}
}

// ExpectTool passes when the named tool was invoked with the expected parameters.
// Invoking the right tool with wrong parameters scores 50.
func ExpectTool(name string, params map[string]interface{}) core.Classifier {
	return core.ClassifierFunc(func(obs core.Observation) core.Verdict {
		for i := range obs.ToolCalls {
			if obs.ToolCalls[i].Name() != name {
				continue
			}
			if ok, why := core.ParamsMatch(&obs.ToolCalls[i], params); !ok {
				return core.Verdict{Score: 50, Details: why}
			}
			return verdict(true, "")
		}
		if invoked := chat.ToolNames(obs.ToolCalls); len(invoked) > 0 {
			return verdict(false, fmt.Sprintf("expected %s, invoked %s", name, strings.Join(invoked, ",")))
		}
		return verdict(false, fmt.Sprintf("expected %s, no tool invoked", name))
	})
}

// ExpectNoTool passes when no tool was invoked
func ExpectNoTool() core.Classifier {
	return core.ClassifierFunc(func(obs core.Observation) core.Verdict {
		if invoked := chat.ToolNames(obs.ToolCalls); len(invoked) > 0 {
			return verdict(false, "unexpected tool call: "+strings.Join(invoked, ","))
		}
		return verdict(true, "")
	})
}

// ExpectText passes when the response mentions any of the phrases, case-insensitively
func ExpectText(anyOf ...string) core.Classifier {
	return core.ClassifierFunc(func(obs core.Observation) core.Verdict {
		text := strings.ToLower(obs.Response)
		for _, phrase := range anyOf {
			if strings.Contains(text, strings.ToLower(phrase)) {
				return verdict(true, "")
			}
		}
		return verdict(false, fmt.Sprintf("response mentions none of %q", anyOf))
	})
}

// ExpectExact passes when the whole response is word, ignoring case,
// surrounding whitespace, quotes and final punctuation
func ExpectExact(word string) core.Classifier {
	return core.ClassifierFunc(func(obs core.Observation) core.Verdict {
		got := strings.Trim(strings.TrimSpace(obs.Response), `"'.!`)
		if strings.EqualFold(got, word) {
			return verdict(true, "")
		}
		return verdict(false, fmt.Sprintf("response %q, want exactly %q", truncate(obs.Response, 60), word))
	})
}

// All passes when every classifier passes; the score is the lowest score
func All(cs ...core.Classifier) core.Classifier {
	return core.ClassifierFunc(func(obs core.Observation) core.Verdict {
		out := core.Verdict{Passed: true, Score: 100}
		for _, c := range cs {
			v := c.Evaluate(obs)
			if v.Score < out.Score {
				out.Score = v.Score
			}
			if !v.Passed {
				out.Passed = false
				if out.Details == "" {
					out.Details = v.Details
				}
			}
		}
		return out
	})
}

// ToolSequence scores how much of the ordered sequence was invoked
func ToolSequence(expected ...string) core.Classifier {
	return core.ClassifierFunc(func(obs core.Observation) core.Verdict {
		score := SequenceScore(expected, chat.ToolNames(obs.ToolCalls))
		v := core.Verdict{Passed: score == 100, Score: score}
		if !v.Passed {
			v.Details = fmt.Sprintf("matched %d%% of %s", score, strings.Join(expected, " -> "))
		}
		return v
	})
}

// SequenceScore is the percentage of expected matched, in order, as a
// subsequence of invoked. With nothing expected it is 100 iff nothing was invoked.
func SequenceScore(expected, invoked []string) int {
	if len(expected) == 0 {
		if len(invoked) == 0 {
			return 100
		}
		return 0
	}
	matched := 0
	for _, name := range invoked {
		if matched < len(expected) && name == expected[matched] {
			matched++
		}
	}
	return core.Percent(matched, len(expected))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
