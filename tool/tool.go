// Package tool implements the tool calling subsystem: the Tool capability
// interface, schema validated function tools, the Registry resolved once at
// startup and the built-in clock and web search tools.
package tool

import (
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
)

// Tool defines the interface for extending the loop with external capabilities.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a JSON schema for parameters
//   - Return errors instead of panicking
//   - Be safe for concurrent use, since calls of one turn may run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is only consumed by the model.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments. Arguments arrive as the
	// JSON object decoded from the tool call payload.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError = core.ToolExecutionError

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return core.NewToolExecutionError(tool, message, code)
}
