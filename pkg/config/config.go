// Package config loads essay generation settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdhe/essay-forge/pkg/budget"
	"github.com/abdhe/essay-forge/pkg/dispatch"
	"github.com/abdhe/essay-forge/pkg/provider"
	"github.com/abdhe/essay-forge/pkg/resilience"
)

const (
	defaultTemperature = 0.8
	defaultMultiplier  = 1.0
)

// Model is the YAML form of provider.ModelConfig.
type Model struct {
	Name            string   `yaml:"name"`
	Model           string   `yaml:"model"`
	Provider        string   `yaml:"provider"`
	Temperature     *float64 `yaml:"temperature"`
	TokenMultiplier float64  `yaml:"token_multiplier"`
	MaxTokens       *int     `yaml:"max_tokens"`
}

// ModelConfig applies defaults and converts to the runtime type.
func (m Model) ModelConfig() provider.ModelConfig {
	mc := provider.ModelConfig{
		Name:            m.Name,
		Model:           m.Model,
		Provider:        provider.Normalize(m.Provider),
		Temperature:     defaultTemperature,
		TokenMultiplier: m.TokenMultiplier,
		MaxTokens:       m.MaxTokens,
	}
	if mc.Provider == "" {
		mc.Provider = provider.OpenAI
	}
	if m.Temperature != nil {
		mc.Temperature = *m.Temperature
	}
	if mc.TokenMultiplier <= 0 {
		mc.TokenMultiplier = defaultMultiplier
	}
	return mc
}

// Generation controls the request shape and the retry loop.
type Generation struct {
	BaseMaxTokens  int           `yaml:"base_max_tokens"`
	ChunkSize      int           `yaml:"chunk_size"`
	ChunkDelay     time.Duration `yaml:"chunk_delay"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryPause     time.Duration `yaml:"retry_pause"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SystemPrompt   string        `yaml:"system_prompt"`
}

// Backoff mirrors resilience.BackoffConfig.
type Backoff struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
}

// Server holds the observability listeners; empty ports disable them.
type Server struct {
	MetricsPort string `yaml:"metrics_port"`
	GRPCPort    string `yaml:"grpc_port"`
}

// Redis configures the optional result ledger; an empty Addr disables it.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Config represents the full configuration.
type Config struct {
	Models     []Model                  `yaml:"models"`
	Generation Generation               `yaml:"generation"`
	Backoff    Backoff                  `yaml:"backoff"`
	Overrides  []dispatch.ParamOverride `yaml:"overrides"`
	Providers  map[string]string        `yaml:"providers"` // provider id → base URL
	Server     Server                   `yaml:"server"`
	Redis      Redis                    `yaml:"redis"`

	// Keys are never read from the file.
	Keys map[string][]string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	one := 1.0
	b := resilience.DefaultBackoffConfig()
	r := resilience.DefaultRetryConfig()
	return &Config{
		Models: []Model{
			{Name: "ChatGPT 4o", Model: "openai/gpt-4o", Provider: provider.OpenAI},
			{Name: "Claude 3.7 Sonnet", Model: "anthropic/claude-3-7-sonnet-20250219", Provider: provider.Anthropic, Temperature: &one, TokenMultiplier: 1.4},
			{Name: "Gemini 2.5 Pro", Model: "gemini/gemini-2.5-pro", Provider: provider.Gemini, TokenMultiplier: 2.0},
		},
		Generation: Generation{
			BaseMaxTokens:  budget.DefaultBaseTokens,
			ChunkSize:      5,
			ChunkDelay:     1 * time.Second,
			MaxAttempts:    r.MaxAttempts,
			RetryPause:     r.Pause,
			RequestTimeout: 120 * time.Second,
			SystemPrompt:   dispatch.DefaultSystemPrompt,
		},
		Backoff: Backoff{
			Initial:    b.Initial,
			Max:        b.Max,
			Multiplier: b.Multiplier,
			Jitter:     b.Jitter,
		},
		Overrides: dispatch.DefaultOverrides(),
		Providers: map[string]string{},
		Redis:     Redis{TTL: 7 * 24 * time.Hour},
		Keys:      map[string][]string{},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the model list and numeric bounds.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Models) == 0 {
		errs = append(errs, errors.New("no models configured"))
	}
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("models[%d]: missing name", i))
		}
		if m.Model == "" {
			errs = append(errs, fmt.Errorf("models[%d]: missing model id", i))
		}
		if seen[m.Name] {
			errs = append(errs, fmt.Errorf("models[%d]: duplicate name %q", i, m.Name))
		}
		seen[m.Name] = true
		if m.MaxTokens != nil && *m.MaxTokens <= 0 {
			errs = append(errs, fmt.Errorf("models[%d]: max_tokens must be positive", i))
		}
	}
	if c.Generation.BaseMaxTokens <= 0 {
		errs = append(errs, errors.New("generation.base_max_tokens must be positive"))
	}
	if c.Generation.MaxAttempts <= 0 {
		errs = append(errs, errors.New("generation.max_attempts must be positive"))
	}
	if c.Generation.ChunkSize <= 0 {
		errs = append(errs, errors.New("generation.chunk_size must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ModelConfigs returns the runtime model list.
func (c *Config) ModelConfigs() []provider.ModelConfig {
	out := make([]provider.ModelConfig, len(c.Models))
	for i, m := range c.Models {
		out[i] = m.ModelConfig()
	}
	return out
}

// BackoffConfig returns the tracker configuration.
func (c *Config) BackoffConfig() resilience.BackoffConfig {
	return resilience.BackoffConfig{
		Initial:    c.Backoff.Initial,
		Max:        c.Backoff.Max,
		Multiplier: c.Backoff.Multiplier,
		Jitter:     c.Backoff.Jitter,
	}
}

// RetryConfig returns the attempt loop configuration.
func (c *Config) RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: c.Generation.MaxAttempts,
		Pause:       c.Generation.RetryPause,
	}
}
