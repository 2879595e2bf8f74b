package shell

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"planforge/internal/tools"
)

func TestRunCommandCapturesStdout(t *testing.T) {
	out, err := executeRunCommand(context.Background(), map[string]any{
		"command": "echo hello",
	}, &tools.ExecutionContext{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("output = %q", out)
	}
}

func TestRunCommandCapturesStderr(t *testing.T) {
	out, err := executeRunCommand(context.Background(), map[string]any{
		"command": "echo oops 1>&2",
	}, &tools.ExecutionContext{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "oops") {
		t.Errorf("stderr not captured: %q", out)
	}
}

func TestRunCommandUsesWorkingDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := executeRunCommand(context.Background(), map[string]any{
		"command": "ls",
	}, &tools.ExecutionContext{WorkingDir: dir})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "marker.txt") {
		t.Errorf("working dir not honored: %q", out)
	}
}

func TestRunCommandNonZeroExit(t *testing.T) {
	_, err := executeRunCommand(context.Background(), map[string]any{
		"command": "exit 3",
	}, &tools.ExecutionContext{})
	if err == nil {
		t.Error("expected error for non-zero exit")
	}
}

func TestRunCommandTimeout(t *testing.T) {
	_, err := executeRunCommand(context.Background(), map[string]any{
		"command":         "sleep 5",
		"timeout_seconds": float64(1),
	}, &tools.ExecutionContext{})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want timeout", err)
	}
}

func TestRunCommandMissingCommand(t *testing.T) {
	_, err := executeRunCommand(context.Background(), map[string]any{}, &tools.ExecutionContext{})
	if err == nil {
		t.Error("expected error for missing command")
	}
}

func TestRegisterAll(t *testing.T) {
	reg := tools.NewRegistry()
	if err := RegisterAll(reg); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}
	tool := reg.Get("run_command")
	if tool == nil {
		t.Fatal("run_command not registered")
	}
	if !tool.RequiresApproval {
		t.Error("run_command should require approval")
	}
	if !tool.HasCapability(tools.CapExecuteShell) {
		t.Error("run_command should declare execute_shell")
	}
}
