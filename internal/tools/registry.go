package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"planforge/internal/logging"
	"planforge/internal/types"
)

// Registry holds all available tools and executes them by name.
// It is thread-safe and supports registration at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry.
// Returns an error if a tool with the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}

	r.tools[tool.Name] = tool
	logging.ToolsDebug("Registered tool: %s (capabilities=%v, approval=%v)", tool.Name, tool.Capabilities, tool.RequiresApproval)
	return nil
}

// MustRegister registers a tool and panics on error.
// Use this for static tool registration at init time.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has returns true if a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns all tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns provider-facing schemas for all tools, sorted by name
// so the schema sent to the provider is stable across turns.
func (r *Registry) Definitions() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]types.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// planModeWriteCaps are denied outright in plan mode. Shell execution is
// handled separately through the read-only command classifier.
var planModeWriteCaps = []Capability{CapWriteFiles, CapSystemModification}

// Execute runs a tool by name under the given execution context, applying
// mode restrictions, approval gating and the per-call timeout, in that order.
// The tool body never runs for a denied call.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, ectx *ExecutionContext) (string, error) {
	tool := r.Get(name)
	if tool == nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if ectx.Mode == types.ModePlan {
		for _, cap := range planModeWriteCaps {
			if tool.HasCapability(cap) {
				logging.Tools("plan mode denied %s (capability %s)", name, cap)
				return "", fmt.Errorf("%w: write operations not allowed in plan mode", ErrPermissionDenied)
			}
		}
		if tool.HasCapability(CapExecuteShell) {
			raw := commandFromArgs(args)
			if ok, reason := ClassifyReadOnlyCommand(raw); !ok {
				logging.Tools("plan mode denied %s: %s", name, reason)
				return "", fmt.Errorf("%w: %s", ErrPermissionDenied, reason)
			}
		}
	}

	if tool.RequiresApproval && !ectx.AutoApprove {
		if ectx.Gate == nil {
			return "", fmt.Errorf("%w: no approval gate configured", ErrApprovalDenied)
		}
		description := describeCall(tool, args)
		resp, err := ectx.Gate.Request(ctx, tool.Name, description, args, tool.capabilityStrings())
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrApprovalDenied, err)
		}
		if !resp.Approved {
			logging.Audit(logging.AuditEvent{
				Type:      logging.AuditToolDenied,
				SessionID: ectx.SessionID,
				Subject:   tool.Name,
				Detail:    resp.Reason,
			})
			return "", fmt.Errorf("%w: %s", ErrApprovalDenied, resp.Reason)
		}
	}

	return r.run(ctx, tool, args, ectx)
}

// run invokes the tool body bounded by the per-call timeout.
func (r *Registry) run(ctx context.Context, tool *Tool, args map[string]any, ectx *ExecutionContext) (string, error) {
	timeout := ectx.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logging.ToolsDebug("executing %s (session=%s mode=%s)", tool.Name, ectx.SessionID, ectx.Mode)
	logging.Audit(logging.AuditEvent{
		Type:      logging.AuditToolInvoke,
		SessionID: ectx.SessionID,
		Subject:   tool.Name,
	})
	start := time.Now()

	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		output, err := tool.Execute(execCtx, args, ectx)
		done <- outcome{output, err}
	}()

	select {
	case <-execCtx.Done():
		if execCtx.Err() == context.DeadlineExceeded {
			logging.Tools("%s timed out after %v", tool.Name, timeout)
			logging.Audit(logging.AuditEvent{
				Type:      logging.AuditToolError,
				SessionID: ectx.SessionID,
				Subject:   tool.Name,
				Detail:    "timeout",
			})
			return "", fmt.Errorf("%w: %s after %v", ErrToolTimeout, tool.Name, timeout)
		}
		return "", execCtx.Err()
	case result := <-done:
		elapsed := time.Since(start)
		if result.err != nil {
			logging.Tools("%s failed after %v: %v", tool.Name, elapsed, result.err)
			logging.Audit(logging.AuditEvent{
				Type:      logging.AuditToolError,
				SessionID: ectx.SessionID,
				Subject:   tool.Name,
				Detail:    result.err.Error(),
			})
			return result.output, fmt.Errorf("%w: %v", ErrExecutionFailed, result.err)
		}
		logging.ToolsDebug("%s completed in %v (%d bytes)", tool.Name, elapsed, len(result.output))
		logging.Audit(logging.AuditEvent{
			Type:      logging.AuditToolComplete,
			SessionID: ectx.SessionID,
			Subject:   tool.Name,
			Fields:    map[string]interface{}{"duration_ms": elapsed.Milliseconds()},
		})
		return result.output, nil
	}
}

// describeCall renders a short human-readable summary for approval prompts.
func describeCall(tool *Tool, args map[string]any) string {
	if cmd := commandFromArgs(args); cmd != "" {
		return fmt.Sprintf("%s: %s", tool.Name, cmd)
	}
	if path, ok := args["path"].(string); ok && path != "" {
		return fmt.Sprintf("%s: %s", tool.Name, path)
	}
	return tool.Description
}
