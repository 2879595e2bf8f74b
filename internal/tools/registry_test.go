package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"planforge/internal/approval"
	"planforge/internal/types"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:         name,
		Description:  "echoes its input",
		Capabilities: []Capability{CapReadFiles},
		Execute: func(ctx context.Context, args map[string]any, ectx *ExecutionContext) (string, error) {
			s, _ := args["text"].(string)
			return s, nil
		},
		Schema: ToolSchema{
			Required:   []string{"text"},
			Properties: map[string]Property{"text": {Type: "string", Description: "text to echo"}},
		},
	}
}

func chatContext() *ExecutionContext {
	return &ExecutionContext{
		SessionID: "s1",
		Mode:      types.ModeChat,
		Timeout:   time.Second,
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d tools", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("echo")
	if got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got.Name != "echo" {
		t.Errorf("got name %q, want %q", got.Name, "echo")
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(echoTool("dupe")); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	err := reg.Register(echoTool("dupe"))
	if !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Errorf("duplicate register error = %v, want ErrToolAlreadyRegistered", err)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Execute(context.Background(), "nope", nil, chatContext())
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("error = %v, want ErrToolNotFound", err)
	}
}

func TestExecuteRunsBody(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoTool("echo"))

	out, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hello"}, chatContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out != "hello" {
		t.Errorf("output = %q, want hello", out)
	}
}

func TestPlanModeDeniesWriteCapability(t *testing.T) {
	reg := NewRegistry()
	invoked := false
	reg.MustRegister(&Tool{
		Name:         "write_file",
		Capabilities: []Capability{CapWriteFiles},
		Execute: func(ctx context.Context, args map[string]any, ectx *ExecutionContext) (string, error) {
			invoked = true
			return "", nil
		},
	})

	ectx := chatContext()
	ectx.Mode = types.ModePlan
	_, err := reg.Execute(context.Background(), "write_file", map[string]any{"path": "x"}, ectx)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("error = %v, want ErrPermissionDenied", err)
	}
	if invoked {
		t.Error("tool body must never run for a denied call")
	}
}

func TestPlanModeShellClassifier(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{
		Name:         "run_command",
		Capabilities: []Capability{CapExecuteShell},
		Execute: func(ctx context.Context, args map[string]any, ectx *ExecutionContext) (string, error) {
			return "ran", nil
		},
	})

	ectx := chatContext()
	ectx.Mode = types.ModePlan
	ectx.AutoApprove = true

	// Allow-listed read-only command runs.
	out, err := reg.Execute(context.Background(), "run_command", map[string]any{"command": "git status"}, ectx)
	if err != nil {
		t.Fatalf("read-only command rejected: %v", err)
	}
	if out != "ran" {
		t.Errorf("output = %q", out)
	}

	// Redirection rejects even an allow-listed binary.
	_, err = reg.Execute(context.Background(), "run_command", map[string]any{"command": "ls -la > out.txt"}, ectx)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("redirection error = %v, want ErrPermissionDenied", err)
	}

	// Mutating command is rejected.
	_, err = reg.Execute(context.Background(), "run_command", map[string]any{"command": "rm -rf /tmp/x"}, ectx)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("rm error = %v, want ErrPermissionDenied", err)
	}
}

func TestApprovalDenialBlocksBody(t *testing.T) {
	gate := approval.NewGate("s1", WithShortTimeout())
	defer gate.Shutdown()
	gate.SetCallback(func(req *approval.Request) {
		go req.Respond(approval.Response{Approved: false, Reason: "no thanks"})
	})

	reg := NewRegistry()
	invoked := false
	reg.MustRegister(&Tool{
		Name:             "write_file",
		Capabilities:     []Capability{CapWriteFiles},
		RequiresApproval: true,
		Execute: func(ctx context.Context, args map[string]any, ectx *ExecutionContext) (string, error) {
			invoked = true
			return "", nil
		},
	})

	ectx := chatContext()
	ectx.Gate = gate
	_, err := reg.Execute(context.Background(), "write_file", map[string]any{"path": "x"}, ectx)
	if !errors.Is(err, ErrApprovalDenied) {
		t.Errorf("error = %v, want ErrApprovalDenied", err)
	}
	if invoked {
		t.Error("denied tool body must not run")
	}
}

// WithShortTimeout keeps approval tests fast.
func WithShortTimeout() approval.Option {
	return approval.WithTimeout(2 * time.Second)
}

func TestApprovalApprovedRunsBody(t *testing.T) {
	gate := approval.NewGate("s1", WithShortTimeout())
	defer gate.Shutdown()
	gate.SetCallback(func(req *approval.Request) {
		go req.Respond(approval.Response{Approved: true})
	})

	reg := NewRegistry()
	reg.MustRegister(&Tool{
		Name:             "write_file",
		Capabilities:     []Capability{CapWriteFiles},
		RequiresApproval: true,
		Execute: func(ctx context.Context, args map[string]any, ectx *ExecutionContext) (string, error) {
			return "written", nil
		},
	})

	ectx := chatContext()
	ectx.Gate = gate
	out, err := reg.Execute(context.Background(), "write_file", map[string]any{"path": "x"}, ectx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out != "written" {
		t.Errorf("output = %q", out)
	}
}

func TestAutoApproveSkipsGate(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{
		Name:             "write_file",
		Capabilities:     []Capability{CapWriteFiles},
		RequiresApproval: true,
		Execute: func(ctx context.Context, args map[string]any, ectx *ExecutionContext) (string, error) {
			return "ok", nil
		},
	})

	ectx := chatContext()
	ectx.AutoApprove = true // no gate configured at all
	out, err := reg.Execute(context.Background(), "write_file", nil, ectx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out != "ok" {
		t.Errorf("output = %q", out)
	}
}

func TestExecuteTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{
		Name:         "slow",
		Capabilities: []Capability{CapReadFiles},
		Execute: func(ctx context.Context, args map[string]any, ectx *ExecutionContext) (string, error) {
			select {
			case <-time.After(5 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	})

	ectx := chatContext()
	ectx.Timeout = 30 * time.Millisecond
	_, err := reg.Execute(context.Background(), "slow", nil, ectx)
	if !errors.Is(err, ErrToolTimeout) {
		t.Errorf("error = %v, want ErrToolTimeout", err)
	}
}

func TestExecutionFailureWrapped(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{
		Name:         "boom",
		Capabilities: []Capability{CapReadFiles},
		Execute: func(ctx context.Context, args map[string]any, ectx *ExecutionContext) (string, error) {
			return "", errors.New("kaboom")
		},
	})

	_, err := reg.Execute(context.Background(), "boom", nil, chatContext())
	if !errors.Is(err, ErrExecutionFailed) {
		t.Errorf("error = %v, want ErrExecutionFailed", err)
	}
}

func TestDefinitionsStableOrder(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoTool("zeta"))
	reg.MustRegister(echoTool("alpha"))
	reg.MustRegister(echoTool("mid"))

	defs := reg.Definitions()
	if len(defs) != 3 {
		t.Fatalf("len = %d, want 3", len(defs))
	}
	if defs[0].Name != "alpha" || defs[2].Name != "zeta" {
		t.Errorf("definitions not sorted: %s, %s, %s", defs[0].Name, defs[1].Name, defs[2].Name)
	}
	schema := defs[0].InputSchema
	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}
}
