// Package config loads the evaluation engine configuration from a YAML file
// with READINESS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for every command
type Config struct {
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Combo     ComboConfig     `yaml:"combo"`
	Residency ResidencyConfig `yaml:"residency"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Distill   DistillConfig   `yaml:"distill"`
	Store     StoreConfig     `yaml:"store"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type RuntimeConfig struct {
	// Provider of models the registry does not list
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	// RegistryFile is the YAML model registry
	RegistryFile string `yaml:"registry_file"`
}

type ComboConfig struct {
	Mains               []string      `yaml:"mains"`
	Executors           []string      `yaml:"executors"`
	TaskTimeout         time.Duration `yaml:"task_timeout"`
	MaxTimeoutsPerCombo int           `yaml:"max_timeouts_per_combo"`
}

type ResidencyConfig struct {
	PairContext   int `yaml:"pair_context"`
	SingleContext int `yaml:"single_context"`
}

type ReadinessConfig struct {
	Threshold    int           `yaml:"threshold"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type DistillConfig struct {
	SuccessThreshold int           `yaml:"success_threshold"`
	CaseTimeout      time.Duration `yaml:"case_timeout"`
}

type StoreConfig struct {
	// SQLitePath empty keeps results in memory
	SQLitePath string `yaml:"sqlite_path"`
	Cache      bool   `yaml:"cache"`
	CacheSize  int    `yaml:"cache_size"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	Environment    string `yaml:"environment"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Provider:     "ollama",
			BaseURL:      "http://localhost:11434",
			RegistryFile: "models.yaml",
		},
		Combo: ComboConfig{
			TaskTimeout:         5 * time.Second,
			MaxTimeoutsPerCombo: 2,
		},
		Residency: ResidencyConfig{PairContext: 4096, SingleContext: 8192},
		Readiness: ReadinessConfig{Threshold: 70, ProbeTimeout: 30 * time.Second},
		Distill:   DistillConfig{SuccessThreshold: 70, CaseTimeout: 30 * time.Second},
		Store:     StoreConfig{Cache: true, CacheSize: 256},
		HTTP:      HTTPConfig{Addr: ":8090"},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path uses READINESS_CONFIG when set; no file at all means defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("READINESS_CONFIG")
		explicit = path != ""
	}
	if explicit {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Runtime.Provider = getEnv("READINESS_RUNTIME_PROVIDER", c.Runtime.Provider)
	c.Runtime.BaseURL = getEnv("READINESS_RUNTIME_URL", c.Runtime.BaseURL)
	c.Runtime.RegistryFile = getEnv("READINESS_MODELS", c.Runtime.RegistryFile)

	if v := os.Getenv("READINESS_MAINS"); v != "" {
		c.Combo.Mains = parseCommaSeparated(v)
	}
	if v := os.Getenv("READINESS_EXECUTORS"); v != "" {
		c.Combo.Executors = parseCommaSeparated(v)
	}
	c.Combo.TaskTimeout = getEnvDuration("READINESS_TASK_TIMEOUT", c.Combo.TaskTimeout)
	c.Combo.MaxTimeoutsPerCombo = getEnvInt("READINESS_MAX_TIMEOUTS", c.Combo.MaxTimeoutsPerCombo)

	c.Residency.PairContext = getEnvInt("READINESS_PAIR_CONTEXT", c.Residency.PairContext)
	c.Residency.SingleContext = getEnvInt("READINESS_SINGLE_CONTEXT", c.Residency.SingleContext)

	c.Readiness.Threshold = getEnvInt("READINESS_THRESHOLD", c.Readiness.Threshold)
	c.Readiness.ProbeTimeout = getEnvDuration("READINESS_PROBE_TIMEOUT", c.Readiness.ProbeTimeout)
	c.Distill.SuccessThreshold = getEnvInt("READINESS_DISTILL_THRESHOLD", c.Distill.SuccessThreshold)
	c.Distill.CaseTimeout = getEnvDuration("READINESS_DISTILL_TIMEOUT", c.Distill.CaseTimeout)

	c.Store.SQLitePath = getEnv("READINESS_DB_PATH", c.Store.SQLitePath)
	c.Store.Cache = getEnvBool("READINESS_CACHE", c.Store.Cache)
	c.Store.CacheSize = getEnvInt("READINESS_CACHE_SIZE", c.Store.CacheSize)

	c.HTTP.Addr = getEnv("READINESS_HTTP_ADDR", c.HTTP.Addr)
	c.Log.Level = getEnv("READINESS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("READINESS_LOG_FORMAT", c.Log.Format)
	c.Tracing.JaegerEndpoint = getEnv("READINESS_JAEGER_ENDPOINT", c.Tracing.JaegerEndpoint)
	c.Tracing.Environment = getEnv("READINESS_ENVIRONMENT", c.Tracing.Environment)
}

// Validate rejects values no component can run with
func (c *Config) Validate() error {
	var errs []error
	if c.Combo.TaskTimeout <= 0 {
		errs = append(errs, errors.New("combo.task_timeout must be positive"))
	}
	if c.Combo.MaxTimeoutsPerCombo <= 0 {
		errs = append(errs, errors.New("combo.max_timeouts_per_combo must be positive"))
	}
	if c.Residency.PairContext <= 0 || c.Residency.SingleContext <= 0 {
		errs = append(errs, errors.New("residency context lengths must be positive"))
	}
	if c.Readiness.Threshold < 0 || c.Readiness.Threshold > 100 {
		errs = append(errs, fmt.Errorf("readiness.threshold %d out of range 0-100", c.Readiness.Threshold))
	}
	if c.Distill.SuccessThreshold < 0 || c.Distill.SuccessThreshold > 100 {
		errs = append(errs, fmt.Errorf("distill.success_threshold %d out of range 0-100", c.Distill.SuccessThreshold))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseCommaSeparated parses a comma-separated string into a slice
func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
