package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_JSONRoundTrip(t *testing.T) {
	cp := NewCheckpoint("conv-1")
	cp.NextStep = NextStepAwaitingHuman
	cp.State = cp.State.With("location", "Singapore").Append(
		UserMessage{Text: "What is the weather?"},
		AssistantMessage{ToolCalls: []ToolCall{{ID: "c1", Name: "ask_human", Arguments: `{"question":"Where?"}`}}},
		ToolResultMessage{ToolCallID: "c1", Name: "ask_human", Content: "Singapore", Human: true},
	)

	data, err := json.Marshal(cp)
	require.NoError(t, err)

	var got Checkpoint
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, cp.ConversationID, got.ConversationID)
	assert.Equal(t, cp.NextStep, got.NextStep)
	assert.Equal(t, cp.State.Messages, got.State.Messages)
	assert.Equal(t, "Singapore", got.State.Values["location"])
}

func TestMessageRecord_RejectsUnknownRole(t *testing.T) {
	_, err := MessageRecord{Role: "system"}.Message()
	assert.Error(t, err)

	_, err = MessageRecord{Role: RoleTool}.Message()
	assert.Error(t, err)

	_, err = MessagesOf([]MessageRecord{{Role: RoleUser}, {Role: "bogus"}})
	assert.ErrorContains(t, err, "message 1")
}

func TestErrors_Matching(t *testing.T) {
	var err error = &NoPendingCheckpointError{ConversationID: "x"}
	assert.True(t, errors.Is(err, ErrNoPendingCheckpoint))
	assert.Contains(t, err.Error(), `"x"`)

	wrapped := fmt.Errorf("resume: %w", &UpstreamModelError{Model: "gpt", Err: errors.New("timeout")})

	var upstream *UpstreamModelError
	require.True(t, errors.As(wrapped, &upstream))
	assert.Equal(t, "gpt", upstream.Model)
	assert.Contains(t, wrapped.Error(), "timeout")

	te := &ToolExecutionError{Tool: "t", Code: CodeUnknownTool, Message: "m", Err: &UnknownToolError{Name: "t"}}

	var unknown *UnknownToolError
	assert.True(t, errors.As(te, &unknown))
	assert.Equal(t, "tool error [UNKNOWN_TOOL] in t: m", te.Error())
}

func TestModelLimiter(t *testing.T) {
	l := NewModelLimiter(2)
	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())

	err := l.Increment()
	assert.ErrorIs(t, err, ErrMaxModelCalls)

	assert.Equal(t, -1, NewModelLimiter(0).Remaining())
}

func TestToolContext(t *testing.T) {
	state := NewState().With("unit", "celsius").Append(UserMessage{Text: "hi"})
	tc := NewToolContext(nil, "conv", "run", ToolCall{ID: "c1", Name: "current_time"}, state, nil)

	require.NoError(t, tc.Validate())
	assert.NotNil(t, tc.Context())
	assert.NotNil(t, tc.Logger())
	assert.Equal(t, "c1", tc.CallID())
	assert.Equal(t, "current_time", tc.ToolName())

	v, ok := tc.GetState("unit")
	require.True(t, ok)
	assert.Equal(t, "celsius", v)

	hist := tc.History()
	hist[0] = UserMessage{Text: "changed"}
	assert.Equal(t, "hi", tc.History()[0].(UserMessage).Text)

	assert.Error(t, NewToolContext(nil, "", "", ToolCall{}, NewState(), nil).Validate())
}
