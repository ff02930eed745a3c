package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader handles loading model configurations
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// LoadRegistry loads the model registry from configuration file
func (l *Loader) LoadRegistry() (*Registry, error) {
	if configPath := os.Getenv("READINESS_MODELS"); configPath != "" {
		l.configPath = configPath
	}

	if l.configPath == "" {
		l.configPath = "models.yaml"
	}

	// No file means no listed models; everything resolves to the defaults
	if _, err := os.Stat(l.configPath); os.IsNotExist(err) {
		return GetDefaultRegistry(), nil
	}

	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", l.configPath, err)
	}

	return LoadRegistryFromBytes(data)
}

// LoadRegistryFromBytes loads registry from byte data
func LoadRegistryFromBytes(data []byte) (*Registry, error) {
	registry := GetDefaultRegistry()
	registry.Models = nil
	if err := yaml.Unmarshal(data, registry); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return registry, nil
}

// SaveRegistry saves the registry to a YAML file
func (l *Loader) SaveRegistry(registry *Registry) error {
	configPath := l.configPath
	if configPath == "" {
		configPath = "models.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(registry)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultRegistry returns a registry routing every model to a local Ollama runtime
func GetDefaultRegistry() *Registry {
	return &Registry{
		Defaults: ModelConfig{
			Provider:      "ollama",
			BaseURL:       "http://localhost:11434",
			ContextLength: 8192,
			DefaultParams: map[string]interface{}{
				"temperature": 0.0,
			},
		},
		Models: []ModelConfig{
			{
				ID:            "qwen2.5:7b",
				Provider:      "ollama",
				BaseURL:       "http://localhost:11434",
				ContextLength: 8192,
				Tags:          []string{"local", "main"},
			},
			{
				ID:            "llama3.2:3b",
				Provider:      "ollama",
				BaseURL:       "http://localhost:11434",
				ContextLength: 8192,
				Tags:          []string{"local", "executor"},
			},
		},
	}
}
