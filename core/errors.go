package core

import (
	"errors"
	"fmt"
)

// Error codes carried by ToolExecutionError.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeUnknownTool = "UNKNOWN_TOOL"
	CodePanic       = "PANIC"
	CodeCancelled   = "CANCELLED"
	CodeSkipped     = "SKIPPED"
)

var (
	// ErrNoPendingCheckpoint is matched by NoPendingCheckpointError.
	ErrNoPendingCheckpoint = errors.New("no pending checkpoint")
	// ErrResumeMismatch reports a resume payload that does not fit the pending step.
	ErrResumeMismatch = errors.New("resume payload does not match pending step")
	// ErrConversationPending reports a new run on a suspended conversation.
	ErrConversationPending = errors.New("conversation is awaiting input")
	// ErrMaxModelCalls reports an exhausted ModelLimiter.
	ErrMaxModelCalls = errors.New("exceeded max model calls")
	// ErrNotRetryable reports a retry on a conversation that is not mid-run.
	ErrNotRetryable = errors.New("conversation has no interrupted step to retry")
)

// NoPendingCheckpointError is returned by resume when the conversation has no
// suspended state. errors.Is(err, ErrNoPendingCheckpoint) matches it.
type NoPendingCheckpointError struct {
	ConversationID string
	NextStep       NextStep // zero when no checkpoint exists at all
}

func (e *NoPendingCheckpointError) Error() string {
	if e.NextStep == "" {
		return fmt.Sprintf("no pending checkpoint for conversation %q", e.ConversationID)
	}
	return fmt.Sprintf("no pending checkpoint for conversation %q (next step %s)", e.ConversationID, e.NextStep)
}

// Is makes the error match ErrNoPendingCheckpoint.
func (e *NoPendingCheckpointError) Is(target error) bool { return target == ErrNoPendingCheckpoint }

// UpstreamModelError wraps a failed or unusable model call.
type UpstreamModelError struct {
	Model string
	Err   error
}

func (e *UpstreamModelError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("upstream model error: %v", e.Err)
	}
	return fmt.Sprintf("upstream model error (%s): %v", e.Model, e.Err)
}

func (e *UpstreamModelError) Unwrap() error { return e.Err }

// ToolExecutionError represents errors that occur during tool execution. It is
// always recovered by the tool step and encoded into a ToolResultMessage.
type ToolExecutionError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	CallID  string `json:"call_id,omitempty"` // Originating tool call
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`
}

func (e *ToolExecutionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// NewToolExecutionError creates a new ToolExecutionError with the specified details.
func NewToolExecutionError(tool, message, code string) *ToolExecutionError {
	return &ToolExecutionError{Tool: tool, Message: message, Code: code}
}

// UnknownToolError reports a tool call whose name is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string { return fmt.Sprintf("unknown tool %q", e.Name) }
