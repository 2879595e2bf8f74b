package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// UserConfig holds per-user presentation preferences, kept separate from the
// workspace config so it can live in the home directory and survive across
// projects.
type UserConfig struct {
	// Theme selects the glamour style for markdown rendering.
	Theme string `yaml:"theme"`

	// ShowTokenUsage displays per-turn token and cost accounting in the UI.
	ShowTokenUsage bool `yaml:"show_token_usage"`

	// CompactMode reduces chrome in the chat view.
	CompactMode bool `yaml:"compact_mode"`

	// DefaultMode is the mode a new session starts in ("chat" or "plan").
	DefaultMode string `yaml:"default_mode"`
}

// DefaultUserConfig returns user preference defaults.
func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Theme:          "dark",
		ShowTokenUsage: true,
		DefaultMode:    "chat",
	}
}

// DefaultUserConfigPath returns ~/.forge/user.yaml.
func DefaultUserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".forge", "user.yaml")
	}
	return filepath.Join(home, ".forge", "user.yaml")
}

// LoadUserConfig reads user preferences, returning defaults for a missing file.
func LoadUserConfig(path string) (*UserConfig, error) {
	cfg := DefaultUserConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}
	return cfg, nil
}

// Save writes user preferences as YAML.
func (c *UserConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
