package providers

import (
	"context"

	"github.com/snow-ghost/readiness/pkg/chat"
	"github.com/snow-ghost/readiness/pkg/registry"
	"github.com/snow-ghost/readiness/pkg/tokens"
)

// Provider defines the interface for inference providers
type Provider interface {
	// Chat performs chat completion
	Chat(ctx context.Context, mc registry.ModelConfig, req chat.ChatRequest) (chat.ChatResponse, error)
}

// BaseProvider provides common functionality for all providers
type BaseProvider struct {
	tokenRegistry *tokens.EncoderRegistry
}

// NewBaseProvider creates a new base provider
func NewBaseProvider(tokenRegistry *tokens.EncoderRegistry) *BaseProvider {
	if tokenRegistry == nil {
		tokenRegistry = tokens.NewEncoderRegistry()
	}
	return &BaseProvider{tokenRegistry: tokenRegistry}
}

// EstimateUsage estimates token usage when not provided by the provider
func (b *BaseProvider) EstimateUsage(model string, messages []chat.Message, responseText string) chat.Usage {
	prompt, err := b.tokenRegistry.CountMessages(model, messages)
	if err != nil {
		prompt = 0
	}
	completion, err := b.tokenRegistry.CountTokens(model, responseText)
	if err != nil || completion < 1 {
		completion = 1
	}
	return chat.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
