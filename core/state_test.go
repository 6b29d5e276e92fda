package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_AppendDoesNotMutateReceiver(t *testing.T) {
	s0 := NewState().Append(UserMessage{Text: "hi"})
	s1 := s0.Append(AssistantMessage{Text: "hello"})

	assert.Equal(t, 1, s0.Len())
	assert.Equal(t, 2, s1.Len())

	// Appending to the same base twice must not alias.
	a := s0.Append(UserMessage{Text: "a"})
	b := s0.Append(UserMessage{Text: "b"})
	assert.Equal(t, "a", a.Last().(UserMessage).Text)
	assert.Equal(t, "b", b.Last().(UserMessage).Text)
}

func TestState_AppendCopiesToolCalls(t *testing.T) {
	calls := []ToolCall{{ID: "c1", Name: "current_time"}}
	s := NewState().Append(AssistantMessage{ToolCalls: calls})

	calls[0].Name = "changed"

	am := s.Last().(AssistantMessage)
	assert.Equal(t, "current_time", am.ToolCalls[0].Name)
}

func TestState_With(t *testing.T) {
	s0 := NewState()
	s1 := s0.With("location", "Singapore")

	_, ok := s0.Value("location")
	assert.False(t, ok)

	v, ok := s1.Value("location")
	require.True(t, ok)
	assert.Equal(t, "Singapore", v)
}

func TestState_LastOnEmpty(t *testing.T) {
	assert.Nil(t, NewState().Last())

	_, idx, ok := NewState().LastAssistant()
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
}

func TestState_UnpairedToolCalls(t *testing.T) {
	s := NewState().Append(
		UserMessage{Text: "q"},
		AssistantMessage{ToolCalls: []ToolCall{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "c"}}},
		ToolResultMessage{ToolCallID: "2", Content: "ok"},
	)

	pending := s.UnpairedToolCalls()
	require.Len(t, pending, 2)
	assert.Equal(t, "1", pending[0].ID)
	assert.Equal(t, "3", pending[1].ID)

	s = s.Append(ToolResultMessage{ToolCallID: "1"}, ToolResultMessage{ToolCallID: "3"})
	assert.Empty(t, s.UnpairedToolCalls())
}

func TestState_UnpairedIgnoresOlderTurns(t *testing.T) {
	s := NewState().Append(
		AssistantMessage{ToolCalls: []ToolCall{{ID: "old"}}},
		ToolResultMessage{ToolCallID: "old"},
		AssistantMessage{Text: "done"},
	)

	assert.Empty(t, s.UnpairedToolCalls())
}

func TestState_Clone(t *testing.T) {
	s := NewState().With("k", 1).Append(AssistantMessage{ToolCalls: []ToolCall{{ID: "1"}}})
	c := s.Clone()

	c.Values["k"] = 2
	c.Messages[0].(AssistantMessage).ToolCalls[0].ID = "x"

	v, _ := s.Value("k")
	assert.Equal(t, 1, v)
	assert.Equal(t, "1", s.Messages[0].(AssistantMessage).ToolCalls[0].ID)
}

func TestCheckpoint_CloneAndPending(t *testing.T) {
	cp := NewCheckpoint("conv")
	assert.False(t, cp.Pending())
	assert.Equal(t, NextStepNone, cp.NextStep)

	cp.NextStep = NextStepAwaitingHuman
	cp.State = cp.State.Append(UserMessage{Text: "x"})

	c := cp.Clone()
	assert.True(t, c.Pending())

	c.State = c.State.Append(UserMessage{Text: "y"})
	assert.Equal(t, 1, cp.State.Len())

	var nilCP *Checkpoint
	assert.False(t, nilCP.Pending())
	assert.Nil(t, nilCP.Clone())
}

func TestNextStep(t *testing.T) {
	assert.True(t, NextStepAwaitingToolDispatch.Pending())
	assert.False(t, NextStepModel.Pending())
	assert.True(t, NextStepTools.Running())
	assert.False(t, NextStepNone.Running())
	assert.True(t, NextStepNone.Valid())
	assert.False(t, NextStep("later").Valid())
}
