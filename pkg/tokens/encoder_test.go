package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/readiness/pkg/chat"
)

func TestMockEncoderCount(t *testing.T) {
	encoder := NewMockEncoder()

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty string", "", 0},
		{"short text", "Hello", 2},
		{"exact multiple", "abcdefgh", 2},
		{"medium text", "This is a test message", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := encoder.Count(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, count)

			toks, err := encoder.Encode(tt.text)
			require.NoError(t, err)
			assert.Len(t, toks, tt.expected)
		})
	}
}

type fixedEncoder int

func (f fixedEncoder) Encode(text string) ([]int, error) { return make([]int, int(f)), nil }
func (f fixedEncoder) Count(text string) (int, error)    { return int(f), nil }

func TestRegistryPrefixLookup(t *testing.T) {
	r := NewEncoderRegistry()
	r.RegisterEncoder("qwen", fixedEncoder(1))
	r.RegisterEncoder("qwen2.5", fixedEncoder(2))

	n, err := r.CountTokens("qwen2.5:7b", "anything")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "longest prefix wins")

	n, err = r.CountTokens("qwen3:8b", "anything")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.CountTokens("llama3.2", "abcd")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "fallback estimate")
}

func TestCountMessages(t *testing.T) {
	r := NewEncoderRegistry()
	n, err := r.CountMessages("m", []chat.Message{
		chat.System("abcd"),
		chat.User("abcdefgh"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1+2+2*messageOverhead, n)
}
