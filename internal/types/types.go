// Package types defines the shared data model for planforge: sessions,
// messages, modes, and the provider-facing interfaces. It has no dependencies
// on other planforge packages so every layer can import it.
package types

import (
	"time"
)

// Mode is the application execution mode. Plan mode restricts tools to
// read-only operations while a plan is under review.
type Mode string

const (
	ModeChat Mode = "chat"
	ModePlan Mode = "plan"
)

// MessageRole identifies who produced a message.
type MessageRole string

const (
	RoleUser       MessageRole = "user"
	RoleAssistant  MessageRole = "assistant"
	RoleToolResult MessageRole = "tool_result"
	RoleSystem     MessageRole = "system"
)

// Session is one conversation with its accumulated accounting.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	WorkingDir   string    `json:"working_dir"`
	Model        string    `json:"model"`
	Mode         Mode      `json:"mode"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one entry of a session transcript. Tool-call requests and
// tool results carry their structured payloads as JSON strings so the
// transcript row stays flat.
type Message struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Role      MessageRole   `json:"role"`
	Content   string        `json:"content"`
	ToolCalls string        `json:"tool_calls,omitempty"`  // JSON-encoded []ToolCall on assistant messages
	ToolUseID string        `json:"tool_use_id,omitempty"` // set on tool-result messages
	ToolName  string        `json:"tool_name,omitempty"`   // set on tool-result messages
	IsError   bool          `json:"is_error,omitempty"`    // tool result carried an error
	Usage     UsageMetadata `json:"usage"`
	Cost      float64       `json:"cost"`
	CreatedAt time.Time     `json:"created_at"`
}

// UsageMetadata captures token usage reported by the provider.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates usage from another response.
func (u *UsageMetadata) Add(other UsageMetadata) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}
