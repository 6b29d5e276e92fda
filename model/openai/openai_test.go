package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

func TestBuildMessages(t *testing.T) {
	req := model.Request{
		Instructions: "be brief",
		Messages: []core.Message{
			core.UserMessage{Text: "time?"},
			core.AssistantMessage{Text: "checking", ToolCalls: []core.ToolCall{{ID: "c1", Name: "current_time"}}},
			core.ToolResultMessage{ToolCallID: "c1", Name: "current_time", Content: "2024-01-01T00:00:00Z"},
			core.AssistantMessage{Text: "It is new year."},
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 5)

	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)

	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "c1", msgs[2].OfAssistant.ToolCalls[0].ID)
	assert.Equal(t, "{}", msgs[2].OfAssistant.ToolCalls[0].Function.Arguments)

	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)

	assert.NotNil(t, msgs[4].OfAssistant)
}

func TestBuildParams_Tools(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "gpt-test" })

	params := m.buildParams(model.Request{Tools: []model.ToolDefinition{{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        "web_search",
			Description: "search",
			Parameters:  map[string]any{"type": "object"},
		},
	}}}, nil)

	require.Len(t, params.Tools, 1)
	assert.Equal(t, "web_search", params.Tools[0].Function.Name)
	assert.Equal(t, "gpt-test", m.Info().Name)
	assert.Equal(t, "openai", m.Info().Provider)
}

func TestFlushToolCalls_OrderedByIndex(t *testing.T) {
	agg := map[int64]*aggCall{
		2: {id: "c", name: "third"},
		0: {id: "a", name: "first"},
		1: {id: "b", name: "second", args: `{"q":1}`},
	}

	calls := flushToolCalls(agg)
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{calls[0].ID, calls[1].ID, calls[2].ID})
	assert.Equal(t, `{"q":1}`, calls[1].Arguments)

	assert.Nil(t, flushToolCalls(map[int64]*aggCall{}))
}
