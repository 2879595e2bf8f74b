// Package config loads planforge configuration from .forge/config.json with
// defaults and environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"planforge/internal/retry"
)

// Config holds all planforge configuration.
type Config struct {
	// LLM provider configuration
	LLM LLMConfig `json:"llm"`

	// Execution settings for the tool loop
	Execution ExecutionConfig `json:"execution"`

	// Approval gate settings
	Approval ApprovalConfig `json:"approval"`

	// Retry policy settings
	Retry RetryConfig `json:"retry"`

	// Storage settings
	Storage StorageConfig `json:"storage"`

	// Logging
	Logging LoggingConfig `json:"logging"`
}

// LLMConfig configures the provider client.
type LLMConfig struct {
	Provider  string `json:"provider"` // anthropic, openai
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	BaseURL   string `json:"base_url"`
	Timeout   string `json:"timeout"`
	MaxTokens int    `json:"max_tokens"`
}

// ExecutionConfig bounds the orchestrator tool loop.
type ExecutionConfig struct {
	MaxToolIterations int    `json:"max_tool_iterations"` // provider round-trips per turn
	ToolTimeout       string `json:"tool_timeout"`        // per tool call
	// Environment is appended to the inherited environment for shell
	// commands the assistant runs.
	Environment map[string]string `json:"environment,omitempty"`
}

// ApprovalConfig configures the human approval gate.
type ApprovalConfig struct {
	AutoApprove bool   `json:"auto_approve"`
	Timeout     string `json:"timeout"` // wait before auto-deny
}

// RetryConfig configures backoff for provider calls.
type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts"`
	BaseDelay      string  `json:"base_delay"`
	MaxDelay       string  `json:"max_delay"`
	Multiplier     float64 `json:"multiplier"`
	JitterFraction float64 `json:"jitter_fraction"`
}

// StorageConfig configures the SQLite store and plan snapshots.
type StorageConfig struct {
	DatabasePath string `json:"database_path"`
	SnapshotDir  string `json:"snapshot_dir"`
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Level      string          `json:"level"`
	Categories map[string]bool `json:"categories"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			Timeout:   "120s",
			MaxTokens: 8192,
		},
		Execution: ExecutionConfig{
			MaxToolIterations: 10,
			ToolTimeout:       "60s",
		},
		Approval: ApprovalConfig{
			AutoApprove: false,
			Timeout:     "5m",
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BaseDelay:      "1s",
			MaxDelay:       "30s",
			Multiplier:     2.0,
			JitterFraction: 0.2,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(".forge", "planforge.db"),
			SnapshotDir:  filepath.Join(".forge", "plans"),
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".forge", "config.json")
}

// Load reads config from path, falling back to defaults for a missing file.
// Environment overrides are applied after the file is read.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API key from environment, checked in provider priority order.
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && (c.LLM.Provider == "anthropic" || c.LLM.APIKey == "") {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "anthropic"
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.Provider == "openai" {
		c.LLM.APIKey = key
	}

	if provider := os.Getenv("FORGE_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if model := os.Getenv("FORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("FORGE_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if v := os.Getenv("FORGE_AUTO_APPROVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Approval.AutoApprove = b
		}
	}
	if v := os.Getenv("FORGE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the provider request timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetToolTimeout returns the per-tool-call timeout.
func (c *Config) GetToolTimeout() time.Duration {
	return parseDuration(c.Execution.ToolTimeout, 60*time.Second)
}

// GetApprovalTimeout returns the approval auto-deny timeout.
func (c *Config) GetApprovalTimeout() time.Duration {
	return parseDuration(c.Approval.Timeout, 5*time.Minute)
}

// GetRetryBaseDelay returns the retry base delay.
func (c *Config) GetRetryBaseDelay() time.Duration {
	return parseDuration(c.Retry.BaseDelay, time.Second)
}

// GetRetryMaxDelay returns the retry delay ceiling.
func (c *Config) GetRetryMaxDelay() time.Duration {
	return parseDuration(c.Retry.MaxDelay, 30*time.Second)
}

// RetryPolicy builds the provider retry policy from the retry section.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		BaseDelay:      c.GetRetryBaseDelay(),
		MaxDelay:       c.GetRetryMaxDelay(),
		Multiplier:     c.Retry.Multiplier,
		JitterFraction: c.Retry.JitterFraction,
		MaxAttempts:    c.Retry.MaxAttempts,
	}
}

// Validate checks config consistency.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown provider: %q", c.LLM.Provider)
	}
	if c.Execution.MaxToolIterations < 1 {
		return fmt.Errorf("max_tool_iterations must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction >= 1 {
		return fmt.Errorf("retry jitter_fraction must be in [0, 1)")
	}
	return nil
}
