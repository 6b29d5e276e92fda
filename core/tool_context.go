package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/logging"
)

// ToolContext provides a constrained surface for tool implementations. It
// exposes the conversation identity, the originating call and a read-only view
// of the state that produced the call. Tools cannot mutate the conversation;
// their only output is the returned result.
type ToolContext struct {
	ctx            context.Context
	conversationID string
	runID          string
	call           ToolCall
	state          State

	*loggerAdapter
}

// NewToolContext constructs a tool context for one call.
func NewToolContext(ctx context.Context, conversationID, runID string, call ToolCall, state State, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}

	return &ToolContext{
		ctx:            ctx,
		conversationID: conversationID,
		runID:          runID,
		call:           call,
		state:          state,
		loggerAdapter:  newLoggerAdapter(logger),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// ConversationID returns the conversation the call belongs to.
func (tc *ToolContext) ConversationID() string { return tc.conversationID }

// RunID returns the id of the drive executing the call.
func (tc *ToolContext) RunID() string { return tc.runID }

// CallID returns the tool call id.
func (tc *ToolContext) CallID() string { return tc.call.ID }

// ToolName returns the requested tool name.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// GetState retrieves an auxiliary state value.
func (tc *ToolContext) GetState(k string) (any, bool) { return tc.state.Value(k) }

// History returns a copy of the conversation history up to the call.
func (tc *ToolContext) History() []Message { return tc.state.Clone().Messages }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.conversationID == "" || tc.call.ID == "" {
		return fmt.Errorf("invalid ToolContext")
	}

	return nil
}
