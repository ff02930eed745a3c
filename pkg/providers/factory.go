package providers

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/snow-ghost/readiness/pkg/registry"
	"github.com/snow-ghost/readiness/pkg/tokens"
)

// Factory creates providers and shares one instance per provider endpoint,
// so an Ollama server's residency state is seen by both chat and residency calls
type Factory struct {
	mu         sync.Mutex
	providers  map[string]Provider
	tokens     *tokens.EncoderRegistry
	httpClient *http.Client
}

// NewFactory creates a new provider factory
func NewFactory(tokenRegistry *tokens.EncoderRegistry, httpClient *http.Client) *Factory {
	return &Factory{
		providers:  make(map[string]Provider),
		tokens:     tokenRegistry,
		httpClient: httpClient,
	}
}

// ForModel returns the provider serving the model configuration
func (f *Factory) ForModel(mc registry.ModelConfig) (Provider, error) {
	switch mc.Provider {
	case "ollama":
		return f.Ollama(mc.BaseURL), nil
	case "openai", "lmstudio", "vllm", "openrouter":
		return f.cached("openai", func() Provider {
			return NewOpenAIProvider(f.tokens, f.httpClient)
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q (supported: %s)", mc.Provider, strings.Join(SupportedProviders(), ", "))
	}
}

// Ollama returns the shared Ollama provider for a base URL
func (f *Factory) Ollama(baseURL string) *OllamaProvider {
	key := "ollama:" + strings.TrimRight(baseURL, "/")
	return f.cached(key, func() Provider {
		return NewOllamaProvider(baseURL, f.tokens, f.httpClient)
	}).(*OllamaProvider)
}

func (f *Factory) cached(key string, create func() Provider) Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.providers[key]; ok {
		return p
	}
	p := create()
	f.providers[key] = p
	return p
}

// SupportedProviders returns the provider types ForModel accepts
func SupportedProviders() []string {
	return []string{"ollama", "openai", "lmstudio", "vllm", "openrouter"}
}
