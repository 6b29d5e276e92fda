package testutil

import (
	"github.com/hupe1980/agentloop/core"
)

// CheckpointBuilder helps construct checkpoints with fluent chaining for tests.
// Example:
//
//	cp := NewCheckpointBuilder("conv-1").User("hi").Assistant(turn).NextStep(core.NextStepAwaitingHuman).Build()
type CheckpointBuilder struct {
	id       string
	values   map[string]any
	messages []core.Message
	next     core.NextStep
}

// NewCheckpointBuilder creates a new builder for a terminated checkpoint with the given id.
func NewCheckpointBuilder(id string) *CheckpointBuilder {
	return &CheckpointBuilder{id: id, values: map[string]any{}, next: core.NextStepNone}
}

// Value sets an auxiliary state value (chainable).
func (b *CheckpointBuilder) Value(key string, val any) *CheckpointBuilder {
	b.values[key] = val
	return b
}

// User appends a user message (chainable).
func (b *CheckpointBuilder) User(text string) *CheckpointBuilder {
	b.messages = append(b.messages, core.UserMessage{Text: text})
	return b
}

// Assistant appends an assistant turn (chainable).
func (b *CheckpointBuilder) Assistant(am core.AssistantMessage) *CheckpointBuilder {
	b.messages = append(b.messages, am)
	return b
}

// ToolResult appends a tool result for callID (chainable).
func (b *CheckpointBuilder) ToolResult(callID, content string) *CheckpointBuilder {
	b.messages = append(b.messages, core.ToolResultMessage{ToolCallID: callID, Content: content})
	return b
}

// NextStep sets the persisted marker (chainable).
func (b *CheckpointBuilder) NextStep(n core.NextStep) *CheckpointBuilder {
	b.next = n
	return b
}

// Build returns a *core.Checkpoint with pre-populated state.
func (b *CheckpointBuilder) Build() *core.Checkpoint {
	cp := core.NewCheckpoint(b.id)

	for k, v := range b.values {
		cp.State = cp.State.With(k, v)
	}

	cp.State = cp.State.Append(b.messages...)
	cp.NextStep = b.next

	return cp
}
