package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
)

func TestRoute(t *testing.T) {
	const sentinel = "ask_human"

	tests := []struct {
		name string
		msg  core.Message
		want Decision
	}{
		{"final answer", core.AssistantMessage{Text: "done"}, DecisionTerminate},
		{"tool call", core.AssistantMessage{ToolCalls: []core.ToolCall{{ID: "1", Name: "current_time"}}}, DecisionTools},
		{"clarification", core.AssistantMessage{ToolCalls: []core.ToolCall{{ID: "1", Name: sentinel}}}, DecisionHumanInput},
		{"clarification first in mixed turn", core.AssistantMessage{ToolCalls: []core.ToolCall{{ID: "1", Name: sentinel}, {ID: "2", Name: "web_search"}}}, DecisionHumanInput},
		{"clarification second in mixed turn", core.AssistantMessage{ToolCalls: []core.ToolCall{{ID: "1", Name: "web_search"}, {ID: "2", Name: sentinel}}}, DecisionTools},
		{"text and tools", core.AssistantMessage{Text: "let me check", ToolCalls: []core.ToolCall{{ID: "1", Name: "web_search"}}}, DecisionTools},
		{"user message", core.UserMessage{Text: "hi"}, DecisionModel},
		{"tool result", core.ToolResultMessage{ToolCallID: "1", Content: "x"}, DecisionModel},
		{"empty history", nil, DecisionTerminate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.msg, sentinel))
		})
	}
}

func TestRoute_NoSentinel(t *testing.T) {
	msg := core.AssistantMessage{ToolCalls: []core.ToolCall{{ID: "1", Name: "ask_human"}}}
	assert.Equal(t, DecisionTools, Route(msg, ""))
}

func TestSplitCalls(t *testing.T) {
	calls := []core.ToolCall{
		{ID: "1", Name: "web_search"},
		{ID: "2", Name: "ask_human"},
		{ID: "3", Name: "current_time"},
	}

	ordinary, clarifications := SplitCalls(calls, "ask_human")
	assert.Equal(t, []core.ToolCall{calls[0], calls[2]}, ordinary)
	assert.Equal(t, []core.ToolCall{calls[1]}, clarifications)

	ordinary, clarifications = SplitCalls(calls, "")
	assert.Len(t, ordinary, 3)
	assert.Empty(t, clarifications)
}

func TestRoute_SentinelAfterOrdinaryCallStillSplitsOut(t *testing.T) {
	msg := core.AssistantMessage{ToolCalls: []core.ToolCall{{ID: "1", Name: "web_search"}, {ID: "2", Name: "ask_human"}}}

	assert.Equal(t, DecisionTools, Route(msg, "ask_human"))

	_, clarifications := SplitCalls(msg.ToolCalls, "ask_human")
	require.Len(t, clarifications, 1)
	assert.Equal(t, "2", clarifications[0].ID)
}
