package registry

import "strings"

// ModelConfig represents configuration for a model
type ModelConfig struct {
	ID            string                 `json:"id" yaml:"id"`             // "qwen2.5:7b"
	Provider      string                 `json:"provider" yaml:"provider"` // ollama|openai|lmstudio|vllm|openrouter
	BaseURL       string                 `json:"base_url" yaml:"base_url"`
	APIKeyEnv     string                 `json:"api_key_env" yaml:"api_key_env"`
	ContextLength int                    `json:"context_length,omitempty" yaml:"context_length,omitempty"` // single-model window
	DefaultParams map[string]interface{} `json:"default_params,omitempty" yaml:"default_params,omitempty"`
	MaxRPM        int                    `json:"max_rpm,omitempty" yaml:"max_rpm,omitempty"` // requests per minute
	Tags          []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Temperature returns the configured sampling temperature, 0 when unset
func (mc ModelConfig) Temperature() float32 {
	switch v := mc.DefaultParams["temperature"].(type) {
	case float64:
		return float32(v)
	case int:
		return float32(v)
	}
	return 0
}

// Registry represents the model registry
type Registry struct {
	// Defaults applies to models that are not listed explicitly
	Defaults ModelConfig   `json:"defaults" yaml:"defaults"`
	Models   []ModelConfig `json:"models" yaml:"models"`
}

// GetModelByID returns a model configuration by ID
func (r *Registry) GetModelByID(id string) *ModelConfig {
	for i := range r.Models {
		if r.Models[i].ID == id {
			return &r.Models[i]
		}
	}
	return nil
}

// Resolve returns the model's configuration, falling back to Defaults with the ID set.
// Local runtimes serve whatever is pulled, so unlisted models are routed to the default provider.
func (r *Registry) Resolve(id string) ModelConfig {
	if mc := r.GetModelByID(id); mc != nil {
		out := *mc
		if out.Provider == "" {
			out.Provider = r.Defaults.Provider
		}
		if out.BaseURL == "" {
			out.BaseURL = r.Defaults.BaseURL
		}
		if out.ContextLength == 0 {
			out.ContextLength = r.Defaults.ContextLength
		}
		return out
	}
	out := r.Defaults
	out.ID = id
	return out
}

// GetModelsByTag returns all models with a specific tag
func (r *Registry) GetModelsByTag(tag string) []ModelConfig {
	var models []ModelConfig
	for _, model := range r.Models {
		for _, modelTag := range model.Tags {
			if strings.EqualFold(modelTag, tag) {
				models = append(models, model)
				break
			}
		}
	}
	return models
}

// IDs returns the listed model IDs in order
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.Models))
	for _, m := range r.Models {
		ids = append(ids, m.ID)
	}
	return ids
}
