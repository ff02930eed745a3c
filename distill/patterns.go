package distill

import (
	"fmt"
	"strings"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/testkit"
)

const (
	PatternToolSequence = "Tool Sequence"
	PatternRAGFirst     = "RAG-First"
	PatternRAGThenRead  = "RAG-Then-Read"
)

// ExtractPatterns reads the behavioral patterns out of one successful
// teacher transcript, given as the ordered tools it invoked
func ExtractPatterns(caseID string, invoked []string) []core.Pattern {
	if len(invoked) == 0 {
		return nil
	}
	seq := append([]string(nil), invoked...)
	patterns := []core.Pattern{{
		Name:         PatternToolSequence,
		Description:  "Tool calls in the order a successful run made them",
		ToolSequence: seq,
		Hints:        []string{fmt.Sprintf("Call %s in this order", strings.Join(seq, " then "))},
		SourceCase:   caseID,
	}}

	if seq[0] == testkit.ToolRAG {
		patterns = append(patterns, core.Pattern{
			Name:        PatternRAGFirst,
			Description: "Search the knowledge base before anything else",
			Hints: []string{
				fmt.Sprintf("Start with %s to find relevant context", testkit.ToolRAG),
				"Base your next step on what the search returned",
			},
			SourceCase: caseID,
		})
	}

	if len(seq) >= 2 && contains(seq, testkit.ToolRAG) && contains(seq, testkit.ToolReadFile) {
		patterns = append(patterns, core.Pattern{
			Name:         PatternRAGThenRead,
			Description:  "Locate with semantic search, then read the file found",
			ToolSequence: []string{testkit.ToolRAG, testkit.ToolReadFile},
			Hints:        []string{fmt.Sprintf("Once %s locates a document, open it with %s", testkit.ToolRAG, testkit.ToolReadFile)},
			SourceCase:   caseID,
		})
	}
	return patterns
}

// Dedupe keeps the first pattern of each name and tool sequence
func Dedupe(patterns []core.Pattern) []core.Pattern {
	seen := make(map[string]bool, len(patterns))
	out := make([]core.Pattern, 0, len(patterns))
	for _, p := range patterns {
		key := p.Name + "\x00" + strings.Join(p.ToolSequence, ",")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// LevelFor picks the prosthetic level from the student's baseline score
func LevelFor(before int) int {
	switch {
	case before >= 50:
		return 1
	case before >= 30:
		return 2
	case before >= 10:
		return 3
	}
	return 4
}

// Render writes the prosthetic text for the patterns. Level 2 adds a
// header and the tool order, level 3 makes every hint mandatory and
// level 4 prefixes a STRICT line.
func Render(capability string, level int, patterns []core.Pattern) string {
	var b strings.Builder
	if level >= 4 {
		fmt.Fprintf(&b, "STRICT: Apply every rule below to all %s requests without exception.\n", capability)
	}
	if level >= 2 {
		fmt.Fprintf(&b, "## Proven patterns for %s\n", capability)
		if order := toolOrder(patterns); len(order) > 0 {
			fmt.Fprintf(&b, "Tool order: %s\n", strings.Join(order, " -> "))
		}
	} else {
		fmt.Fprintf(&b, "Tips for %s:\n", capability)
	}

	prefix := "- "
	if level >= 3 {
		prefix = "- MUST: "
	}
	for _, p := range patterns {
		for _, h := range p.Hints {
			b.WriteString(prefix)
			b.WriteString(h)
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// toolOrder is the longest recorded tool sequence
func toolOrder(patterns []core.Pattern) []string {
	var best []string
	for _, p := range patterns {
		if len(p.ToolSequence) > len(best) {
			best = p.ToolSequence
		}
	}
	return best
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
