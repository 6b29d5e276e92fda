package engine

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// CallbackType defines the specific lifecycle points where callbacks can be executed.
//
// Callbacks provide a flexible mechanism for hooking into the engine's
// execution loop without modifying core logic. Each type represents a point
// in the lifecycle of a drive:
//   - BeforeModel/AfterModel: Around each model step
//   - BeforeTool/AfterTool: Around each executed tool call
//   - OnInterrupt: When a conversation pauses for a human
//   - OnError: When a drive fails
//
// Callbacks are executed synchronously. An error returned from any callback
// other than OnError aborts the drive; the last saved checkpoint is kept.
type CallbackType string

const (
	// CallbackBeforeModel is triggered before the model is invoked.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel is triggered after the model produced an assistant turn.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeTool is triggered before a tool call is dispatched.
	// Use for parameter validation, security checks, or auditing.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool is triggered once the call has a result message.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnInterrupt is triggered after a pause has been checkpointed.
	CallbackOnInterrupt CallbackType = "on_interrupt"

	// CallbackOnError is triggered when a drive returns an error. Errors
	// returned by these callbacks are logged and otherwise ignored.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries what a callback may inspect. Fields not relevant
// to the callback type are zero.
type CallbackContext struct {
	ConversationID string
	RunID          string
	CallbackType   CallbackType

	// State is the conversation state at the time of the callback.
	State core.State

	// Message is the assistant turn (after_model).
	Message *core.AssistantMessage

	// ToolCall is the call being executed (before_tool, after_tool).
	ToolCall *core.ToolCall

	// Result is the call's result message (after_tool).
	Result *core.ToolResultMessage

	// Pending describes the pause (on_interrupt).
	Pending *Pending

	// Err is the failure (on_error).
	Err error

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for execution lifecycle hooks.
//
// Implementations should be fast since they run on the drive's goroutine and
// must not retain the State beyond the call.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	// Returning an error will terminate the associated drive.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackBeforeTool,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("calling %s", cc.ToolCall.Name)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager orchestrates callback execution throughout the engine lifecycle.
//
// Callbacks are executed in registration order, and any callback returning
// an error stops the remaining callbacks of that type.
//
// Thread Safety:
// The CallbackManager is not inherently thread-safe. Register all callbacks
// before handing the manager to the engine; execution is then safe for
// concurrent use.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type
// and returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	callbacks, exists := cm.callbacks[callbackType]
	if !exists {
		return nil // No callbacks registered for this type
	}

	callbackCtx.CallbackType = callbackType

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback provides structured logging for engine lifecycle events.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackAfterTool, logger)
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle event with whatever context the type carries.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{"conversation_id", callbackCtx.ConversationID, "run_id", callbackCtx.RunID, "messages", callbackCtx.State.Len()}

	if callbackCtx.ToolCall != nil {
		args = append(args, "tool", callbackCtx.ToolCall.Name, "call_id", callbackCtx.ToolCall.ID)
	}

	if callbackCtx.Result != nil {
		args = append(args, "is_error", callbackCtx.Result.IsError)
	}

	if callbackCtx.Pending != nil {
		args = append(args, "next_step", string(callbackCtx.Pending.NextStep), "pending_calls", len(callbackCtx.Pending.ToolCalls))
	}

	if callbackCtx.Err != nil {
		args = append(args, "error", callbackCtx.Err.Error())
	}

	c.logger.Info("engine.callback."+string(c.callbackType), args...)

	return nil
}

// ToolCallValidationCallback vets tool calls before they are dispatched.
//
// The validator receives each call; an error rejects it and aborts the drive
// with the conversation left at its tools step, so a Retry re-validates.
//
// Example:
//
//	validator := func(call core.ToolCall) error {
//	    if call.Name == "web_search" && strings.Contains(call.Arguments, "password") {
//	        return errors.New("refusing to search for credentials")
//	    }
//	    return nil
//	}
//	callback := NewToolCallValidationCallback(validator)
type ToolCallValidationCallback struct {
	validator func(call core.ToolCall) error
}

// NewToolCallValidationCallback creates a new tool call validation callback.
func NewToolCallValidationCallback(validator func(call core.ToolCall) error) *ToolCallValidationCallback {
	return &ToolCallValidationCallback{
		validator: validator,
	}
}

// Type returns the callback type (always CallbackBeforeTool).
func (c *ToolCallValidationCallback) Type() CallbackType {
	return CallbackBeforeTool
}

// Execute validates the call carried by the context.
func (c *ToolCallValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator != nil && callbackCtx.ToolCall != nil {
		return c.validator(*callbackCtx.ToolCall)
	}

	return nil
}
