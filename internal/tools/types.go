// Package tools provides the capability-gated tool registry. Every local
// capability the model can invoke is a Tool registered here by name; the
// registry enforces plan-mode restrictions and routes approval-requiring
// calls through the approval gate before a tool body ever runs.
package tools

import (
	"context"
	"time"

	"planforge/internal/approval"
	"planforge/internal/types"
)

// Capability is a named permission class a tool declares. Capabilities gate
// execution in restricted modes and are shown to the human on approval.
type Capability string

const (
	CapReadFiles          Capability = "read_files"
	CapWriteFiles         Capability = "write_files"
	CapExecuteShell       Capability = "execute_shell"
	CapNetwork            Capability = "network"
	CapSystemModification Capability = "system_modification"
	CapPlanManagement     Capability = "plan_management"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecutionContext carries per-turn execution state into tool bodies.
// Created fresh for each agent turn; never persisted.
type ExecutionContext struct {
	SessionID   string
	WorkingDir  string
	Env         map[string]string
	AutoApprove bool
	Timeout     time.Duration
	Mode        types.Mode
	PlanID      string

	// Gate is the session's approval gate; nil disables approval routing
	// (callers then rely on AutoApprove).
	Gate *approval.Gate
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any, ectx *ExecutionContext) (string, error)

// Tool defines a single capability the model can invoke. Immutable once
// registered.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does, for LLM tool calling.
	Description string

	// Capabilities declares the permission classes this tool exercises.
	Capabilities []Capability

	// RequiresApproval routes execution through the approval gate.
	RequiresApproval bool

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// HasCapability reports whether the tool declares the capability.
func (t *Tool) HasCapability(c Capability) bool {
	for _, cap := range t.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// capabilityStrings renders the capability set for approval requests.
func (t *Tool) capabilityStrings() []string {
	out := make([]string, len(t.Capabilities))
	for i, c := range t.Capabilities {
		out[i] = string(c)
	}
	return out
}

// Definition converts the tool to the provider-facing schema.
func (t *Tool) Definition() types.ToolDefinition {
	properties := make(map[string]interface{}, len(t.Schema.Properties))
	for name, prop := range t.Schema.Properties {
		p := map[string]interface{}{
			"type":        prop.Type,
			"description": prop.Description,
		}
		if prop.Default != nil {
			p["default"] = prop.Default
		}
		if len(prop.Enum) > 0 {
			p["enum"] = prop.Enum
		}
		if prop.Items != nil {
			p["items"] = map[string]interface{}{"type": prop.Items.Type}
		}
		properties[name] = p
	}
	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// Result wraps the outcome of one tool execution with metadata.
type Result struct {
	ToolName   string
	Output     string
	Err        error
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *Result) IsSuccess() bool {
	return r.Err == nil
}
