package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/sashabaranov/go-openai"

	"github.com/snow-ghost/readiness/pkg/chat"
	"github.com/snow-ghost/readiness/pkg/limiter"
	"github.com/snow-ghost/readiness/pkg/registry"
	"github.com/snow-ghost/readiness/pkg/tokens"
)

// localAPIKey is sent to OpenAI-compatible local servers that ignore authentication
const localAPIKey = "not-needed"

// OpenAIProvider implements the Provider interface for OpenAI-compatible APIs:
// OpenAI, OpenRouter, LM Studio and vLLM
type OpenAIProvider struct {
	*BaseProvider
	httpClient *http.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible provider
func NewOpenAIProvider(tokenRegistry *tokens.EncoderRegistry, httpClient *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		BaseProvider: NewBaseProvider(tokenRegistry),
		httpClient:   httpClient,
	}
}

func (p *OpenAIProvider) client(mc registry.ModelConfig) (*openai.Client, error) {
	apiKey := localAPIKey
	if mc.APIKeyEnv != "" {
		apiKey = os.Getenv(mc.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in environment variable %s", mc.APIKeyEnv)
		}
	}
	config := openai.DefaultConfig(apiKey)
	if mc.BaseURL != "" {
		config.BaseURL = mc.BaseURL
	}
	if p.httpClient != nil {
		config.HTTPClient = p.httpClient
	}
	return openai.NewClientWithConfig(config), nil
}

// Chat performs chat completion using the OpenAI API
func (p *OpenAIProvider) Chat(ctx context.Context, mc registry.ModelConfig, req chat.ChatRequest) (chat.ChatResponse, error) {
	client, err := p.client(mc)
	if err != nil {
		return chat.ChatResponse{}, err
	}

	request := openai.ChatCompletionRequest{
		Model:       mc.ID,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	for _, tool := range req.Tools {
		if tool.Function == nil {
			continue
		}
		request.Tools = append(request.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	response, err := client.CreateChatCompletion(ctx, request)
	if err != nil {
		return chat.ChatResponse{}, fmt.Errorf("openai chat completion failed: %w", classifyOpenAIError(err))
	}
	if len(response.Choices) == 0 {
		return chat.ChatResponse{}, fmt.Errorf("openai chat completion returned no choices")
	}

	choice := response.Choices[0]
	chatResp := chat.ChatResponse{
		Text: choice.Message.Content,
		Usage: chat.Usage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		},
		Model:        mc.ID,
		Provider:     mc.Provider,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		chatResp.ToolCalls = append(chatResp.ToolCalls, chat.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: &chat.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	if chatResp.Usage.TotalTokens == 0 {
		chatResp.Usage = p.EstimateUsage(mc.ID, req.Messages, chatResp.Text)
	}

	return chatResp, nil
}

func toOpenAIMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			if tc.Function == nil {
				continue
			}
			out[i].ToolCalls = append(out[i].ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	return out
}

// classifyOpenAIError surfaces HTTP status codes so the retry policy can see them
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return limiter.NewHTTPError(apiErr.HTTPStatusCode, apiErr.Message, "")
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return limiter.NewHTTPError(reqErr.HTTPStatusCode, reqErr.Error(), string(reqErr.Body))
	}
	return err
}
