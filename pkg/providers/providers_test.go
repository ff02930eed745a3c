package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/chat"
	"github.com/snow-ghost/readiness/pkg/limiter"
	"github.com/snow-ghost/readiness/pkg/registry"
)

var readFile = chat.FunctionTool("read_file", "Read a file", []string{"path"}, map[string]string{"path": "file path"})

// fakeOllama records requests and serves /api/chat, /api/ps and /api/generate
type fakeOllama struct {
	mu       sync.Mutex
	loaded   []string
	chats    []map[string]interface{}
	generate []map[string]interface{}
}

func (f *fakeOllama) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.chats = append(f.chats, body)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": body["model"],
			"message": map[string]interface{}{
				"role":    "assistant",
				"content": "",
				"tool_calls": []map[string]interface{}{
					{"function": map[string]interface{}{"name": "read_file", "arguments": map[string]interface{}{"path": "a.txt"}}},
				},
			},
			"done":              true,
			"done_reason":       "stop",
			"prompt_eval_count": 12,
			"eval_count":        3,
		})
	})
	mux.HandleFunc("/api/ps", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		models := []map[string]string{}
		for _, m := range f.loaded {
			models = append(models, map[string]string{"name": m, "model": m})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"models": models})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.generate = append(f.generate, body)
		model := body["model"].(string)
		if model == "missing" {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
			return
		}
		if ka, ok := body["keep_alive"].(float64); ok && ka == 0 {
			kept := f.loaded[:0]
			for _, m := range f.loaded {
				if m != model {
					kept = append(kept, m)
				}
			}
			f.loaded = kept
		} else {
			f.loaded = append(f.loaded, model)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": model, "done": true})
	})
	return mux
}

func TestOllamaChatWithTools(t *testing.T) {
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, nil, srv.Client())
	mc := registry.ModelConfig{ID: "qwen2.5:7b", Provider: "ollama", BaseURL: srv.URL}

	resp, err := p.Chat(context.Background(), mc, chat.ChatRequest{
		Messages: []chat.Message{chat.User("read a.txt")},
		Tools:    []chat.Tool{readFile},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "read_file", resp.ToolCalls[0].Name())
	assert.JSONEq(t, `{"path":"a.txt"}`, resp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	require.Len(t, fake.chats, 1)
	tools := fake.chats[0]["tools"].([]interface{})
	assert.Len(t, tools, 1)
	assert.Equal(t, false, fake.chats[0]["stream"])
}

func TestOllamaResidency(t *testing.T) {
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, nil, srv.Client())
	ctx := context.Background()

	require.NoError(t, p.Load(ctx, "main", core.LoadOptions{ContextLength: 4096}))
	require.NoError(t, p.Load(ctx, "exec", core.LoadOptions{ContextLength: 4096}))

	loaded, err := p.ListLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "exec"}, loaded)

	// chat reuses the load-time window so the runtime does not reload
	_, err = p.Chat(ctx, registry.ModelConfig{ID: "main", Provider: "ollama"}, chat.ChatRequest{Messages: []chat.Message{chat.User("hi")}})
	require.NoError(t, err)
	opts := fake.chats[0]["options"].(map[string]interface{})
	assert.Equal(t, 4096.0, opts["num_ctx"])

	require.NoError(t, p.Unload(ctx, "main"))
	loaded, err = p.ListLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"exec"}, loaded)
	assert.Equal(t, 0, p.contextFor("main"))

	err = p.Load(ctx, "missing", core.LoadOptions{})
	var httpErr *limiter.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestArgumentString(t *testing.T) {
	assert.Equal(t, "{}", argumentString(nil))
	assert.Equal(t, "{}", argumentString(json.RawMessage("null")))
	assert.Equal(t, `{"a":1}`, argumentString(json.RawMessage(`{"a":1}`)))
	assert.Equal(t, `{"a":1}`, argumentString(json.RawMessage(`"{\"a\":1}"`)))
}

func openAIServer(t *testing.T, status int, seen *map[string]interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1234567890,
			"model":   "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index": 0,
				"message": map[string]interface{}{
					"role": "assistant",
					"tool_calls": []map[string]interface{}{{
						"id":       "call_1",
						"type":     "function",
						"function": map[string]interface{}{"name": "read_file", "arguments": `{"path":"a.txt"}`},
					}},
				},
				"finish_reason": "tool_calls",
			}},
			"usage": map[string]interface{}{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func TestOpenAIChatWithTools(t *testing.T) {
	var seen map[string]interface{}
	srv := openAIServer(t, http.StatusOK, &seen)
	defer srv.Close()

	p := NewOpenAIProvider(nil, srv.Client())
	mc := registry.ModelConfig{ID: "local-model", Provider: "lmstudio", BaseURL: srv.URL}

	prior := chat.Assistant("")
	prior.ToolCalls = []chat.ToolCall{chat.NewToolCall("call_0", "list_files", nil)}
	resp, err := p.Chat(context.Background(), mc, chat.ChatRequest{
		Messages: []chat.Message{chat.User("read a.txt"), prior, chat.ToolResult("call_0", "a.txt")},
		Tools:    []chat.Tool{readFile},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "read_file", resp.ToolCalls[0].Name())
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	messages := seen["messages"].([]interface{})
	require.Len(t, messages, 3)
	assert.Equal(t, "call_0", messages[2].(map[string]interface{})["tool_call_id"])
	assert.Len(t, seen["tools"].([]interface{}), 1)
}

func TestOpenAIStatusIsRetryable(t *testing.T) {
	srv := openAIServer(t, http.StatusServiceUnavailable, nil)
	defer srv.Close()

	p := NewOpenAIProvider(nil, srv.Client())
	_, err := p.Chat(context.Background(), registry.ModelConfig{ID: "m", Provider: "vllm", BaseURL: srv.URL}, chat.ChatRequest{
		Messages: []chat.Message{chat.User("hi")},
	})
	var httpErr *limiter.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}

func TestOpenAIMissingAPIKey(t *testing.T) {
	p := NewOpenAIProvider(nil, nil)
	_, err := p.Chat(context.Background(), registry.ModelConfig{ID: "m", Provider: "openai", APIKeyEnv: "READINESS_TEST_UNSET_KEY"}, chat.ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READINESS_TEST_UNSET_KEY")
}

func TestGatewayRoutesThroughRegistry(t *testing.T) {
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	reg := &registry.Registry{Defaults: registry.ModelConfig{Provider: "ollama", BaseURL: srv.URL}}
	factory := NewFactory(nil, srv.Client())
	gw := NewGateway(reg, factory, GatewayOptions{})

	resp, err := gw.Chat(context.Background(), "anything:1b", chat.ChatRequest{Messages: []chat.Message{chat.User("x")}})
	require.NoError(t, err)
	assert.Equal(t, "anything:1b", resp.Model)

	rt := gw.Runtime()
	require.NotNil(t, rt)
	assert.Same(t, factory.Ollama(srv.URL), rt, "one provider instance per endpoint")
}

func TestGatewayUnknownProvider(t *testing.T) {
	reg := &registry.Registry{}
	gw := NewGateway(reg, NewFactory(nil, nil), GatewayOptions{})
	_, err := gw.Chat(context.Background(), "m", chat.ChatRequest{})
	assert.ErrorIs(t, err, core.ErrModelNotFound)
	assert.Nil(t, gw.Runtime())
}
