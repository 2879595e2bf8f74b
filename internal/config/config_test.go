package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Execution.MaxToolIterations != 10 {
		t.Errorf("default max_tool_iterations = %d, want 10", cfg.Execution.MaxToolIterations)
	}
	if got := cfg.GetApprovalTimeout(); got != 5*time.Minute {
		t.Errorf("default approval timeout = %v, want 5m", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q, want default anthropic", cfg.LLM.Provider)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".forge", "config.json")

	cfg := DefaultConfig()
	cfg.Execution.MaxToolIterations = 4
	cfg.Approval.Timeout = "30s"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Execution.MaxToolIterations != 4 {
		t.Errorf("max_tool_iterations = %d, want 4", loaded.Execution.MaxToolIterations)
	}
	if got := loaded.GetApprovalTimeout(); got != 30*time.Second {
		t.Errorf("approval timeout = %v, want 30s", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FORGE_DB", "/tmp/override.db")
	t.Setenv("FORGE_AUTO_APPROVE", "true")
	t.Setenv("FORGE_MODEL", "claude-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.DatabasePath != "/tmp/override.db" {
		t.Errorf("database_path = %q, want env override", cfg.Storage.DatabasePath)
	}
	if !cfg.Approval.AutoApprove {
		t.Error("auto_approve should be overridden to true")
	}
	if cfg.LLM.Model != "claude-test" {
		t.Errorf("model = %q, want claude-test", cfg.LLM.Model)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}

	cfg = DefaultConfig()
	cfg.Retry.JitterFraction = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for jitter_fraction >= 1")
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.MaxAttempts = 5
	cfg.Retry.BaseDelay = "250ms"
	cfg.Retry.MaxDelay = "10s"
	cfg.Retry.Multiplier = 3.0
	cfg.Retry.JitterFraction = 0.1

	p := cfg.RetryPolicy()
	if p.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", p.MaxAttempts)
	}
	if p.BaseDelay != 250*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 250ms", p.BaseDelay)
	}
	if p.MaxDelay != 10*time.Second {
		t.Errorf("MaxDelay = %v, want 10s", p.MaxDelay)
	}
	if p.Multiplier != 3.0 || p.JitterFraction != 0.1 {
		t.Errorf("Multiplier/JitterFraction = %v/%v, want 3.0/0.1", p.Multiplier, p.JitterFraction)
	}

	// Unparseable durations fall back rather than zeroing the policy.
	cfg.Retry.BaseDelay = "garbage"
	if got := cfg.RetryPolicy().BaseDelay; got != time.Second {
		t.Errorf("fallback BaseDelay = %v, want 1s", got)
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Approval.Timeout = "not-a-duration"
	if got := cfg.GetApprovalTimeout(); got != 5*time.Minute {
		t.Errorf("invalid duration should fall back to 5m, got %v", got)
	}
}

func TestUserConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.yaml")

	cfg := DefaultUserConfig()
	cfg.Theme = "light"
	cfg.CompactMode = true
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadUserConfig(path)
	if err != nil {
		t.Fatalf("LoadUserConfig failed: %v", err)
	}
	if loaded.Theme != "light" || !loaded.CompactMode {
		t.Errorf("user config round trip mismatch: %+v", loaded)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("user config file missing: %v", err)
	}
}
