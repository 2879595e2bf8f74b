package tools

import "errors"

// Tool registry and execution errors.
var (
	// ErrToolNotFound is returned when a tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrInvalidInput is returned when required arguments are missing or
	// have the wrong type.
	ErrInvalidInput = errors.New("invalid tool input")

	// ErrPermissionDenied is returned when the execution mode forbids the
	// tool's capabilities. The tool body is never invoked.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrApprovalDenied is returned when the human denied the call.
	ErrApprovalDenied = errors.New("approval denied")

	// ErrToolTimeout is returned when a tool body exceeded the per-call
	// timeout. The call is treated as failed, not retried.
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrExecutionFailed wraps failures from the tool body itself.
	ErrExecutionFailed = errors.New("tool execution failed")
)
