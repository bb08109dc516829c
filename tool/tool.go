// Package tool implements the function calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side effects) with
// schema validated arguments and consistent error handling.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool defines the contract for extending agent capabilities with callable
// functions.
//
// A tool's name is the dispatch key used by the LLM's function-calling
// protocol and must be unique within an agent; duplicates are rejected when
// the agent is built. Implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a proper JSON Schema for arguments
//   - Be safe for concurrent use (a tool instance may be shared by several
//     agents)
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case
	// recommended).
	Name() string

	// Description returns a human-readable description provided to the LLM
	// to help it decide when and how to use the tool.
	Description() string

	// ArgsSchema returns a JSON Schema object describing the expected
	// arguments.
	ArgsSchema() map[string]any

	// Execute runs the tool with the raw JSON arguments produced by the
	// LLM. The returned value must be JSON-serializable; errors are folded
	// into the conversation rather than aborting the run.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ToolError represents errors that occur during tool dispatch or execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
