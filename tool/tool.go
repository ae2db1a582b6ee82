// Package tool implements the tool calling subsystem: the Tool contract,
// schema validated function tools, the registry that executes model
// requested calls, and the built-in search and human assistance tools.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
)

// Tool is a capability the model may request by name.
//
// Tools read conversation fields and stage field writes through the
// ToolContext; they never touch the conversation directly. Implementations
// must be safe for concurrent use when the orchestrator executes calls in
// parallel.
type Tool interface {
	// Name returns the unique identifier advertised to the model.
	Name() string

	// Description tells the model when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors.
type ValidationError = util.ValidationError

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap lets errors.Is match core.ErrToolExecution.
func (e *ToolError) Unwrap() error { return core.ErrToolExecution }

// NewToolError creates a new ToolError.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
