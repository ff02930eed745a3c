package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistryFromBytes(t *testing.T) {
	data := []byte(`
defaults:
  provider: lmstudio
  base_url: http://localhost:1234/v1
  context_length: 4096
models:
  - id: gpt-4o-mini
    provider: openai
    base_url: https://api.openai.com/v1
    api_key_env: OPENAI_API_KEY
    max_rpm: 500
    tags: [remote, main]
`)
	reg, err := LoadRegistryFromBytes(data)
	require.NoError(t, err)
	require.Len(t, reg.Models, 1)

	mc := reg.Resolve("gpt-4o-mini")
	assert.Equal(t, "openai", mc.Provider)
	assert.Equal(t, 4096, mc.ContextLength, "context length inherited from defaults")
	assert.Equal(t, 500, mc.MaxRPM)

	unknown := reg.Resolve("local-model")
	assert.Equal(t, "local-model", unknown.ID)
	assert.Equal(t, "lmstudio", unknown.Provider)
	assert.Equal(t, "http://localhost:1234/v1", unknown.BaseURL)

	assert.Len(t, reg.GetModelsByTag("MAIN"), 1)
	assert.Equal(t, []string{"gpt-4o-mini"}, reg.IDs())
}

func TestLoaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "models.yaml")
	loader := NewLoader(path)

	reg := GetDefaultRegistry()
	require.NoError(t, loader.SaveRegistry(reg))

	_, err := os.Stat(path)
	require.NoError(t, err)

	got, err := loader.LoadRegistry()
	require.NoError(t, err)
	assert.Equal(t, reg.IDs(), got.IDs())
	assert.Equal(t, "ollama", got.Defaults.Provider)
}

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	reg, err := loader.LoadRegistry()
	require.NoError(t, err)
	assert.Equal(t, "ollama", reg.Resolve("anything").Provider)
}
