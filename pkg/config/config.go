// Package config defines the application configuration.
//
// Configuration is loaded from a YAML file with ${ENV_VAR} expansion. Every
// section carries its own SetDefaults and Validate so that a zero config is
// usable out of the box.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Directory DirectoryConfig `yaml:"directory"`
	Engine    EngineConfig    `yaml:"engine"`
	Documents DocumentsConfig `yaml:"documents"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SetDefaults applies defaults to all sections.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Directory.SetDefaults()
	c.Engine.SetDefaults()
	c.Documents.SetDefaults()
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks all sections.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Directory.Validate(); err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Documents.Validate(); err != nil {
		return fmt.Errorf("documents: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// LLMConfig configures the language model provider.
type LLMConfig struct {
	// Provider selects the backend: openai, anthropic, gemini.
	Provider string `yaml:"provider"`

	// Model is the model identifier, e.g. "gpt-4o-mini".
	Model string `yaml:"model"`

	// APIKey authenticates against the provider (use ${ENV_VAR}).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible servers).
	BaseURL string `yaml:"base_url"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`

	// MaxRetries bounds transport-level retries.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the backoff base delay in seconds.
	RetryDelay int `yaml:"retry_delay"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		switch c.Provider {
		case "anthropic":
			c.Model = "claude-sonnet-4-20250514"
		case "gemini":
			c.Model = "gemini-2.0-flash"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0, 2]", c.Temperature)
	}
	return nil
}

// DirectoryConfig configures the contact directory backend.
type DirectoryConfig struct {
	// Type selects the backend: memory or sqlite.
	Type string `yaml:"type"`

	// Path is the sqlite database file.
	Path string `yaml:"path"`

	// Seed populates an empty directory with the demo contact set.
	Seed bool `yaml:"seed"`
}

func (c *DirectoryConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "memory"
		c.Seed = true
	}
	if c.Type == "sqlite" && c.Path == "" {
		c.Path = "agentbench.db"
	}
}

func (c *DirectoryConfig) Validate() error {
	switch c.Type {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown directory type %q", c.Type)
	}
	return nil
}

// EngineConfig carries the workflow engine defaults. Per-run parameters
// override these.
type EngineConfig struct {
	// MaxRetries bounds the adaptive workflow's disambiguation loop.
	MaxRetries int `yaml:"max_retries"`

	// MaxRefinements bounds the recursive Q&A refinement loop.
	MaxRefinements int `yaml:"max_refinements"`

	// TargetConfidence is the recursive Q&A stop threshold.
	TargetConfidence float64 `yaml:"target_confidence"`

	// StepTimeout is the per-collaborator-call timeout in seconds.
	StepTimeout int `yaml:"step_timeout"`
}

func (c *EngineConfig) SetDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.MaxRefinements == 0 {
		c.MaxRefinements = 3
	}
	if c.TargetConfidence == 0 {
		c.TargetConfidence = 0.85
	}
	if c.StepTimeout == 0 {
		c.StepTimeout = 60
	}
}

func (c *EngineConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if c.MaxRefinements < 0 {
		return fmt.Errorf("max_refinements must be >= 0")
	}
	if c.TargetConfidence < 0 || c.TargetConfidence > 1 {
		return fmt.Errorf("target_confidence %v out of range [0, 1]", c.TargetConfidence)
	}
	return nil
}

// StepTimeoutDuration returns the step timeout as a duration.
func (c *EngineConfig) StepTimeoutDuration() time.Duration {
	return time.Duration(c.StepTimeout) * time.Second
}

// DocumentsConfig configures document context for recursive Q&A.
type DocumentsConfig struct {
	// Paths lists files (.txt, .md, .pdf) loaded as answer context.
	Paths []string `yaml:"paths"`

	// MaxContextTokens truncates the combined context.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// TokenizerModel selects the tiktoken encoding.
	TokenizerModel string `yaml:"tokenizer_model"`
}

func (c *DocumentsConfig) SetDefaults() {
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = 2000
	}
	if c.TokenizerModel == "" {
		c.TokenizerModel = "gpt-4o-mini"
	}
}

func (c *DocumentsConfig) Validate() error {
	if c.MaxContextTokens < 0 {
		return fmt.Errorf("max_context_tokens must be >= 0")
	}
	return nil
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address string `yaml:"address"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
}

func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	return nil
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
