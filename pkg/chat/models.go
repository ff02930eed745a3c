package chat

import (
	"encoding/json"
	"strings"
)

// Message represents a chat message
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// System builds a system message
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user message
func User(content string) Message { return Message{Role: "user", Content: content} }

// Assistant builds an assistant message
func Assistant(content string) Message { return Message{Role: "assistant", Content: content} }

// ToolResult builds a tool result message answering the call with the given id
func ToolResult(callID, content string) Message {
	return Message{Role: "tool", Content: content, ToolCallID: callID}
}

// Tool represents a tool that can be called
type Tool struct {
	Type     string        `json:"type"`
	Function *ToolFunction `json:"function,omitempty"`
}

// ToolFunction defines a function tool
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Name returns the function name of the tool, or "" for non-function tools
func (t Tool) Name() string {
	if t.Function == nil {
		return ""
	}
	return t.Function.Name
}

// FunctionTool builds a function tool with an object schema over string properties
func FunctionTool(name, description string, required []string, props map[string]string) Tool {
	properties := make(map[string]interface{}, len(props))
	for key, desc := range props {
		properties[key] = map[string]interface{}{"type": "string", "description": desc}
	}
	if required == nil {
		required = []string{}
	}
	return Tool{
		Type: "function",
		Function: &ToolFunction{
			Name:        name,
			Description: description,
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// ToolCall represents a tool call made by the model
type ToolCall struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Function *ToolCallFunction `json:"function,omitempty"`
}

// ToolCallFunction contains the function call details
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewToolCall builds a function tool call with JSON-encoded arguments
func NewToolCall(id, name string, args map[string]interface{}) ToolCall {
	raw := "{}"
	if len(args) > 0 {
		if b, err := json.Marshal(args); err == nil {
			raw = string(b)
		}
	}
	return ToolCall{ID: id, Type: "function", Function: &ToolCallFunction{Name: name, Arguments: raw}}
}

// Name returns the called function name, or "" when absent
func (tc ToolCall) Name() string {
	if tc.Function == nil {
		return ""
	}
	return tc.Function.Name
}

// ToolNames returns the function names of the calls in order
func ToolNames(calls []ToolCall) []string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		if n := c.Name(); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	Tools       []Tool            `json:"tools,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	TopP        float32           `json:"top_p,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Caller      string            `json:"caller,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PromptText concatenates message contents, used for token estimation
func (r ChatRequest) PromptText() string {
	var b strings.Builder
	for _, m := range r.Messages {
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	Text         string     `json:"text"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Usage        Usage      `json:"usage"`
	Model        string     `json:"model"`
	Provider     string     `json:"provider"`
	FinishReason string     `json:"finish_reason"`
}
