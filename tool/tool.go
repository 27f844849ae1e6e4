// Package tool implements the function / tool calling subsystem that lets
// agents invoke structured capabilities (APIs, computations, side effects)
// with JSON-Schema described parameters and consistent error handling.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// Tool defines the interface for extending agent capabilities with external
// functions.
//
// Tools are registered with agents (directly or via extensions) to enable
// function calling. Implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a proper JSON schema for parameters
//   - Handle errors gracefully (return an error Result or an error, never panic;
//     the executor recovers panics as a safety net)
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected argument object.
	Parameters() map[string]any

	// Execute runs the tool. Arguments arrive as an already-decoded mapping;
	// the executor guarantees a non-nil map. The onUpdate callback is an
	// optional progress side channel (may be nil); progress text never
	// becomes part of the result.
	Execute(ctx context.Context, callID string, args map[string]any, onUpdate func(partial string)) (*Result, error)
}

// Result is the normalized outcome of one tool execution. Content is what the
// model sees; Details carries structured data for programmatic consumers and
// is never sent to the model.
type Result struct {
	Content []core.ContentBlock `json:"content"`
	Details map[string]any      `json:"details,omitempty"`
	IsError bool                `json:"is_error,omitempty"`
}

// NewTextResult builds a successful text result.
func NewTextResult(text string) *Result {
	return &Result{Content: []core.ContentBlock{core.TextBlock{Text: text}}}
}

// NewErrorResult builds a failed text result.
func NewErrorResult(text string) *Result {
	return &Result{Content: []core.ContentBlock{core.TextBlock{Text: text}}, IsError: true}
}

// Text returns the concatenated text-block content of the result.
func (r *Result) Text() string { return core.TextOf(r.Content) }

// ToolError represents errors that occur during tool execution.
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
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
