package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/chat"
	"github.com/snow-ghost/readiness/pkg/limiter"
	"github.com/snow-ghost/readiness/pkg/registry"
	"github.com/snow-ghost/readiness/pkg/tokens"
)

// DefaultKeepAlive keeps loaded models resident between tests
const DefaultKeepAlive = "30m"

// OllamaProvider implements Provider over the native Ollama API. It also
// implements core.ModelRuntime for the same server.
type OllamaProvider struct {
	*BaseProvider
	client    *http.Client
	baseURL   string
	keepAlive string

	mu     sync.Mutex
	numCtx map[string]int // context window each model was loaded with
}

var _ core.ModelRuntime = (*OllamaProvider)(nil)

// OllamaMessage represents a message in Ollama format
type OllamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// OllamaRequest represents the request format for /api/chat
type OllamaRequest struct {
	Model     string                 `json:"model"`
	Messages  []OllamaMessage        `json:"messages"`
	Tools     []chat.Tool            `json:"tools,omitempty"`
	Stream    bool                   `json:"stream"`
	KeepAlive string                 `json:"keep_alive,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

// OllamaResponse represents the response format from /api/chat
type OllamaResponse struct {
	Model           string        `json:"model"`
	Message         OllamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

type ollamaGenerateRequest struct {
	Model     string                 `json:"model"`
	Prompt    string                 `json:"prompt"`
	Stream    bool                   `json:"stream"`
	KeepAlive interface{}            `json:"keep_alive"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type ollamaProcessList struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(baseURL string, tokenRegistry *tokens.EncoderRegistry, client *http.Client) *OllamaProvider {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &OllamaProvider{
		BaseProvider: NewBaseProvider(tokenRegistry),
		client:       client,
		baseURL:      strings.TrimRight(baseURL, "/"),
		keepAlive:    DefaultKeepAlive,
		numCtx:       make(map[string]int),
	}
}

// Chat performs chat completion using /api/chat with native tool calling
func (p *OllamaProvider) Chat(ctx context.Context, mc registry.ModelConfig, req chat.ChatRequest) (chat.ChatResponse, error) {
	messages := make([]OllamaMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = OllamaMessage{Role: msg.Role, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			if tc.Function == nil {
				continue
			}
			args := json.RawMessage(tc.Function.Arguments)
			if !json.Valid(args) {
				args = json.RawMessage("{}")
			}
			messages[i].ToolCalls = append(messages[i].ToolCalls, ollamaToolCall{
				Function: ollamaFunctionCall{Name: tc.Function.Name, Arguments: args},
			})
		}
	}

	options := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	// A differing num_ctx makes Ollama reload the model, so reuse the load-time window
	if n := p.contextFor(mc.ID); n > 0 {
		options["num_ctx"] = n
	}

	var ollamaResp OllamaResponse
	err := p.post(ctx, "/api/chat", OllamaRequest{
		Model:     mc.ID,
		Messages:  messages,
		Tools:     req.Tools,
		Stream:    false,
		KeepAlive: p.keepAlive,
		Options:   options,
	}, &ollamaResp)
	if err != nil {
		return chat.ChatResponse{}, fmt.Errorf("ollama chat failed: %w", err)
	}

	chatResp := chat.ChatResponse{
		Text:         ollamaResp.Message.Content,
		Model:        mc.ID,
		Provider:     mc.Provider,
		FinishReason: ollamaResp.DoneReason,
	}
	if chatResp.FinishReason == "" {
		chatResp.FinishReason = "stop"
	}
	for i, tc := range ollamaResp.Message.ToolCalls {
		chatResp.ToolCalls = append(chatResp.ToolCalls, chat.ToolCall{
			ID:       fmt.Sprintf("call_%d", i),
			Type:     "function",
			Function: &chat.ToolCallFunction{Name: tc.Function.Name, Arguments: argumentString(tc.Function.Arguments)},
		})
	}
	if len(chatResp.ToolCalls) > 0 && chatResp.FinishReason == "stop" {
		chatResp.FinishReason = "tool_calls"
	}

	if ollamaResp.PromptEvalCount > 0 || ollamaResp.EvalCount > 0 {
		chatResp.Usage = chat.Usage{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		}
	} else {
		chatResp.Usage = p.EstimateUsage(mc.ID, req.Messages, chatResp.Text)
	}

	return chatResp, nil
}

// argumentString renders Ollama's object arguments in the OpenAI string form
func argumentString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "{}"
	}
	// some models return the arguments already string-encoded
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

// ListLoaded returns the models currently resident in the runtime
func (p *OllamaProvider) ListLoaded(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/ps", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama ps request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var list ollamaProcessList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode ollama ps response: %w", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		names = append(names, name)
	}
	return names, nil
}

// Load makes the model resident with the requested context window
func (p *OllamaProvider) Load(ctx context.Context, model string, opts core.LoadOptions) error {
	req := ollamaGenerateRequest{Model: model, KeepAlive: p.keepAlive}
	if opts.ContextLength > 0 {
		req.Options = map[string]interface{}{"num_ctx": opts.ContextLength}
	}
	if err := p.post(ctx, "/api/generate", req, nil); err != nil {
		return fmt.Errorf("ollama load %s: %w", model, err)
	}

	p.mu.Lock()
	p.numCtx[model] = opts.ContextLength
	p.mu.Unlock()
	return nil
}

// Unload evicts the model from the runtime
func (p *OllamaProvider) Unload(ctx context.Context, model string) error {
	if err := p.post(ctx, "/api/generate", ollamaGenerateRequest{Model: model, KeepAlive: 0}, nil); err != nil {
		return fmt.Errorf("ollama unload %s: %w", model, err)
	}

	p.mu.Lock()
	delete(p.numCtx, model)
	p.mu.Unlock()
	return nil
}

func (p *OllamaProvider) contextFor(model string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numCtx[model]
}

func (p *OllamaProvider) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return limiter.NewHTTPError(resp.StatusCode, strings.TrimSpace(string(body)), string(body))
}
