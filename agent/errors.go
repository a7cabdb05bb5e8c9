// Package agent implements the execution loop that drives a model through
// tool calls against a sandboxed workspace: a tool registry, a runner that
// owns the conversation history, and a typed event stream for the host.
package agent

import "fmt"

// ToolErrorCode classifies tool execution failures.
type ToolErrorCode string

const (
	// ToolErrUnknownTool is a call to a name not in the registry. This is
	// the one tool failure that aborts the run instead of feeding back.
	ToolErrUnknownTool ToolErrorCode = "unknown_tool"
	// ToolErrInvalidInput covers malformed arguments, unknown fields,
	// missing required fields, and paths escaping the workspace.
	ToolErrInvalidInput ToolErrorCode = "invalid_input"
	// ToolErrNotFound is a missing file or an edit target string that does
	// not occur in the file.
	ToolErrNotFound ToolErrorCode = "not_found"
	// ToolErrTimeout is a command that exceeded its timeout.
	ToolErrTimeout ToolErrorCode = "timeout"
)

// ToolError is a structured tool execution failure. Everything except
// unknown_tool is rendered into an error tool result and fed back to the
// model for self-correction.
type ToolError struct {
	Code    ToolErrorCode
	Tool    string
	Message string
	Cause   error
}

func (e *ToolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Tool, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Tool, e.Code, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError creates a ToolError with a formatted message.
func NewToolError(code ToolErrorCode, tool, format string, args ...any) *ToolError {
	return &ToolError{Code: code, Tool: tool, Message: fmt.Sprintf(format, args...)}
}
