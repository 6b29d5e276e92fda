package core

import (
	"context"
	"time"
)

// NextStep records which step runs when a conversation is continued.
type NextStep string

const (
	// NextStepNone marks a terminated conversation; a new user message starts a fresh cycle.
	NextStepNone NextStep = "none"
	// NextStepModel marks a running conversation whose next step is the model call.
	NextStepModel NextStep = "model"
	// NextStepTools marks a running conversation whose next step is tool execution.
	NextStepTools NextStep = "tools"
	// NextStepAwaitingHuman marks a conversation paused on a clarification request.
	NextStepAwaitingHuman NextStep = "awaiting_human"
	// NextStepAwaitingToolDispatch marks a conversation paused for tool approval.
	NextStepAwaitingToolDispatch NextStep = "awaiting_tool_dispatch"
)

// Pending reports whether the conversation is suspended awaiting a caller.
func (n NextStep) Pending() bool {
	return n == NextStepAwaitingHuman || n == NextStepAwaitingToolDispatch
}

// Running reports whether the marker denotes an in-flight step.
func (n NextStep) Running() bool {
	return n == NextStepModel || n == NextStepTools
}

// Valid reports whether n is one of the known markers.
func (n NextStep) Valid() bool {
	switch n {
	case NextStepNone, NextStepModel, NextStepTools, NextStepAwaitingHuman, NextStepAwaitingToolDispatch:
		return true
	default:
		return false
	}
}

// Checkpoint is the persisted snapshot of one conversation.
type Checkpoint struct {
	ConversationID string    `json:"conversation_id"`
	State          State     `json:"state"`
	NextStep       NextStep  `json:"next_step"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewCheckpoint returns an empty, terminated checkpoint for id.
func NewCheckpoint(id string) *Checkpoint {
	now := time.Now().UTC()

	return &Checkpoint{ConversationID: id, State: NewState(), NextStep: NextStepNone, CreatedAt: now, UpdatedAt: now}
}

// Pending reports whether the checkpoint awaits human input or approval.
func (c *Checkpoint) Pending() bool { return c != nil && c.NextStep.Pending() }

// Clone returns a deep copy safe for independent mutation.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}

	cp := *c
	cp.State = c.State.Clone()

	return &cp
}

// CheckpointStore persists at most one checkpoint per conversation id.
// Writes are last-write-wins. Load returns (nil, nil) when no checkpoint
// exists. Implementations must be safe for concurrent use across distinct ids.
type CheckpointStore interface {
	Load(ctx context.Context, conversationID string) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
	Delete(ctx context.Context, conversationID string) error
}
