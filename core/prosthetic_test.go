package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProstheticConfigJSONShape(t *testing.T) {
	cfg := ProstheticConfig{
		ModelID: "qwen",
		Levels: []Level{
			Advisory{Capability: "General Instruction Following", Text: "double-check"},
			Constraint{Capability: "File Operations", Text: "verify JSON"},
			Intervention{Trigger: "failure recovery", Action: InterventionBlock, Message: "blocked"},
			Disqualification{Capability: "Failure Recovery"},
		},
	}
	b, err := json.Marshal(cfg)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, key := range []string{"modelId", "level1Prompts", "level2Constraints", "level3Interventions", "level4Disqualifications"} {
		assert.Contains(t, raw, key)
	}

	var got ProstheticConfig
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, cfg.ModelID, got.ModelID)
	assert.Equal(t, []string{"double-check"}, got.Advisories())
	assert.Equal(t, []string{"verify JSON"}, got.Constraints())
	assert.Equal(t, cfg.Interventions(), got.Interventions())
	assert.True(t, got.IsDisqualified("Failure Recovery"))
	assert.Equal(t, 2, got.HighestLevel("File Operations", "file operations"))
	assert.Equal(t, 4, got.HighestLevel("Failure Recovery", "failure recovery"))
}

func TestCapabilityErrorUnwraps(t *testing.T) {
	err := error(&CapabilityError{Model: "m", Capability: "File Operations"})
	assert.True(t, errors.Is(err, ErrCapabilityUnavailable))
	assert.Contains(t, err.Error(), "File Operations")
}
