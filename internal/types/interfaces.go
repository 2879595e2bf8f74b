package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteWithTools sends the conversation with tool definitions and
	// returns the response including any tool calls the model requested.
	CompleteWithTools(ctx context.Context, systemPrompt string, history []ChatMessage, tools []ToolDefinition) (*LLMToolResponse, error)

	// Capability flags.
	SupportsStreaming() bool
	SupportsTools() bool
	SupportsVision() bool
}

// StreamingClient is implemented by providers that can stream completions.
type StreamingClient interface {
	// CompleteWithStreaming returns a channel of text chunks and a channel
	// carrying at most one terminal error.
	CompleteWithStreaming(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error)
}

// ChatMessage is the provider-facing view of a transcript entry.
type ChatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // assistant tool-use requests
	ToolUseID string     `json:"tool_use_id,omitempty"` // tool-result correlation
	IsError   bool       `json:"is_error,omitempty"`
}

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string                 `json:"id"`    // Unique ID for this tool use
	Name  string                 `json:"name"`  // Tool name to invoke
	Input map[string]interface{} `json:"input"` // Tool arguments
}

// LLMToolResponse contains both text response and tool calls from the LLM.
type LLMToolResponse struct {
	Text       string        `json:"text"`        // Text response (may be empty if only tool calls)
	ToolCalls  []ToolCall    `json:"tool_calls"`  // Tool invocations requested by the LLM
	StopReason string        `json:"stop_reason"` // "end_turn", "tool_use", etc.
	Usage      UsageMetadata `json:"usage"`
}
