// Package shell provides the command execution tool.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"planforge/internal/logging"
	"planforge/internal/tools"
)

// maxOutputBytes truncates runaway command output before it reaches the model.
const maxOutputBytes = 50000

// RunCommandTool returns a tool for executing shell commands.
// Shell execution mutates state, so it requires approval.
func RunCommandTool() *tools.Tool {
	return &tools.Tool{
		Name:             "run_command",
		Description:      "Execute a shell command and return its output",
		Capabilities:     []tools.Capability{tools.CapExecuteShell},
		RequiresApproval: true,
		Execute:          executeRunCommand,
		Schema: tools.ToolSchema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The command to execute",
				},
				"working_dir": {
					Type:        "string",
					Description: "Working directory for the command (default: session working directory)",
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Timeout in seconds (default: 60)",
					Default:     60,
				},
			},
		},
	}
}

func executeRunCommand(ctx context.Context, args map[string]any, ectx *tools.ExecutionContext) (string, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return "", fmt.Errorf("%w: command is required", tools.ErrInvalidInput)
	}

	workingDir := ""
	if wd, ok := args["working_dir"].(string); ok {
		workingDir = wd
	}
	if workingDir == "" && ectx != nil {
		workingDir = ectx.WorkingDir
	}

	timeout := 60
	switch t := args["timeout_seconds"].(type) {
	case int:
		if t > 0 {
			timeout = t
		}
	case float64:
		if t > 0 {
			timeout = int(t)
		}
	}

	logging.ToolsDebug("run_command: cmd=%s, dir=%s, timeout=%ds", command, workingDir, timeout)

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = workingDir
	cmd.Env = os.Environ()
	if ectx != nil {
		for k, v := range ectx.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes] + "\n...[truncated]"
	}

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("command timed out after %d seconds", timeout)
		}
		return output, fmt.Errorf("command failed: %w\nOutput:\n%s", err, output)
	}

	return output, nil
}
