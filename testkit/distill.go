package testkit

import (
	"sort"

	"github.com/snow-ghost/readiness/pkg/chat"
)

// DistillCase is one teacher/student transfer case. ExpectedTools is the
// ordered tool sequence a correct turn invokes; empty means no tool at all.
type DistillCase struct {
	ID            string
	Prompt        string
	Tools         []chat.Tool
	ExpectedTools []string
}

var distillCases = map[string][]DistillCase{
	"rag": {
		{
			ID:            "rag.find_and_open",
			Prompt:        "Find where the retry policy is documented and show me that file.",
			Tools:         Tools(ToolRAG, ToolReadFile, ToolSearch),
			ExpectedTools: []string{ToolRAG, ToolReadFile},
		},
		{
			ID:            "rag.knowledge_lookup",
			Prompt:        "What does our knowledge base say about API rate limits?",
			Tools:         Tools(ToolRAG, ToolSearch),
			ExpectedTools: []string{ToolRAG},
		},
		{
			ID:            "rag.locate_guide",
			Prompt:        "Locate the deployment guide in the project docs and open it.",
			Tools:         Tools(ToolRAG, ToolReadFile, ToolBrowse),
			ExpectedTools: []string{ToolRAG, ToolReadFile},
		},
	},
	"file_operations": {
		{
			ID:            "file.read_source",
			Prompt:        "Show me the contents of main.go.",
			Tools:         Tools(ToolReadFile, ToolWriteFile),
			ExpectedTools: []string{ToolReadFile},
		},
		{
			ID:            "file.copy_text",
			Prompt:        "Copy the text of draft.txt into final.txt.",
			Tools:         Tools(ToolReadFile, ToolWriteFile),
			ExpectedTools: []string{ToolReadFile, ToolWriteFile},
		},
		{
			ID:            "file.save_note",
			Prompt:        "Save the line 'hello world' to greeting.txt.",
			Tools:         Tools(ToolReadFile, ToolWriteFile),
			ExpectedTools: []string{ToolWriteFile},
		},
	},
	"tool_use": {
		{
			ID:            "tool.weather",
			Prompt:        "Is it raining in Oslo right now?",
			Tools:         Tools(ToolWeather, ToolSearch),
			ExpectedTools: []string{ToolWeather},
		},
		{
			ID:            "tool.arithmetic",
			Prompt:        "Compute 1234 multiplied by 5678.",
			Tools:         Tools(ToolCalculate, ToolSearch),
			ExpectedTools: []string{ToolCalculate},
		},
		{
			ID:            "tool.notify",
			Prompt:        "Email bob@example.com that the build is green.",
			Tools:         Tools(ToolEmail, ToolCalendar),
			ExpectedTools: []string{ToolEmail},
		},
	},
	"conversation": {
		{
			ID:     "chat.thanks",
			Prompt: "Thanks, that's all for today!",
			Tools:  Tools(ToolWeather, ToolSearch),
		},
		{
			ID:     "chat.opinion",
			Prompt: "Which do you think reads better, tabs or spaces?",
			Tools:  Tools(ToolSearch, ToolRAG),
		},
	},
}

// DistillationCases returns the case set of a capability, nil when unknown
func DistillationCases(capability string) []DistillCase {
	cases := distillCases[capability]
	if cases == nil {
		return nil
	}
	return append([]DistillCase(nil), cases...)
}

// DistillationCapabilities lists the capabilities with case sets
func DistillationCapabilities() []string {
	out := make([]string, 0, len(distillCases))
	for c := range distillCases {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
