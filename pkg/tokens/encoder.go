package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/snow-ghost/readiness/pkg/chat"
)

// messageOverhead approximates role and separator tokens per chat message
const messageOverhead = 4

// Encoder represents a token encoder for a specific model
type Encoder interface {
	Encode(text string) ([]int, error)
	Count(text string) (int, error)
}

// TiktokenEncoder implements Encoder using tiktoken-go
type TiktokenEncoder struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEncoder creates a new tiktoken encoder. The BPE ranks are
// fetched on first use, so this fails offline.
func NewTiktokenEncoder(encodingName string) (*TiktokenEncoder, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}
	return &TiktokenEncoder{encoding: encoding}, nil
}

// Encode converts text to tokens
func (e *TiktokenEncoder) Encode(text string) ([]int, error) {
	return e.encoding.Encode(text, nil, nil), nil
}

// Count returns the number of tokens in text
func (e *TiktokenEncoder) Count(text string) (int, error) {
	return len(e.encoding.Encode(text, nil, nil)), nil
}

// MockEncoder implements Encoder with simple character-based counting
type MockEncoder struct{}

// NewMockEncoder creates a new mock encoder
func NewMockEncoder() *MockEncoder {
	return &MockEncoder{}
}

// Encode converts text to mock tokens (character-based)
func (e *MockEncoder) Encode(text string) ([]int, error) {
	count, _ := e.Count(text)
	tokens := make([]int, count)
	for i := range tokens {
		tokens[i] = i
	}
	return tokens, nil
}

// Count returns ceil(len/4) tokens, 0 for empty text
func (e *MockEncoder) Count(text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

// EncoderRegistry maps model ID prefixes to encoders
type EncoderRegistry struct {
	mu       sync.RWMutex
	encoders map[string]Encoder
	fallback Encoder
}

// NewEncoderRegistry creates a registry that falls back to the character estimate
func NewEncoderRegistry() *EncoderRegistry {
	return &EncoderRegistry{
		encoders: make(map[string]Encoder),
		fallback: NewMockEncoder(),
	}
}

// RegisterEncoder registers an encoder for a model ID or ID prefix
func (r *EncoderRegistry) RegisterEncoder(prefix string, encoder Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[prefix] = encoder
}

// SetFallback replaces the encoder used for unregistered models
func (r *EncoderRegistry) SetFallback(encoder Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = encoder
}

// GetEncoder returns the encoder with the longest matching prefix, or the fallback
func (r *EncoderRegistry) GetEncoder(modelID string) Encoder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if encoder, exists := r.encoders[modelID]; exists {
		return encoder
	}
	best, match := "", Encoder(nil)
	for prefix, enc := range r.encoders {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(best) {
			best, match = prefix, enc
		}
	}
	if match != nil {
		return match
	}
	return r.fallback
}

// CountTokens counts tokens in text using the model's encoder
func (r *EncoderRegistry) CountTokens(modelID, text string) (int, error) {
	return r.GetEncoder(modelID).Count(text)
}

// CountMessages counts tokens in a conversation including per-message overhead
func (r *EncoderRegistry) CountMessages(modelID string, messages []chat.Message) (int, error) {
	encoder := r.GetEncoder(modelID)
	total := 0
	for _, m := range messages {
		n, err := encoder.Count(m.Content)
		if err != nil {
			return 0, err
		}
		total += n + messageOverhead
	}
	return total, nil
}

// GetDefaultRegistry returns a registry using cl100k_base for every model.
// When the encoding cannot be loaded the character estimate is used instead.
func GetDefaultRegistry() *EncoderRegistry {
	registry := NewEncoderRegistry()
	if encoder, err := NewTiktokenEncoder("cl100k_base"); err == nil {
		registry.SetFallback(encoder)
		if o200k, err := NewTiktokenEncoder("o200k_base"); err == nil {
			for _, prefix := range []string{"gpt-4o", "o1", "o3"} {
				registry.RegisterEncoder(prefix, o200k)
			}
		}
	}
	return registry
}
