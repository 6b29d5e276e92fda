package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
)

func drain(respCh <-chan Response, errCh <-chan error) ([]Response, error) {
	var out []Response
	for r := range respCh {
		out = append(out, r)
	}

	return out, <-errCh
}

func TestMockModel_ReplaysScript(t *testing.T) {
	m := NewMockModel("mock", "mock").
		AddToolCalls(core.ToolCall{ID: "c1", Name: "current_time"}).
		AddText("It is noon.")

	req := Request{Messages: []core.Message{core.UserMessage{Text: "time?"}}}

	resps, err := drain(m.Generate(context.Background(), req))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, "tool_calls", resps[0].FinishReason)
	assert.Equal(t, "current_time", resps[0].Message.ToolCalls[0].Name)

	resps, err = drain(m.Generate(context.Background(), req))
	require.NoError(t, err)
	assert.Equal(t, "It is noon.", resps[0].Message.Text)

	_, err = drain(m.Generate(context.Background(), req))
	assert.ErrorIs(t, err, ErrNoScriptedTurn)

	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, 0, m.Remaining())
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("mock", "mock").AddText("abc")

	resps, err := drain(m.Generate(context.Background(), Request{Stream: true}))
	require.NoError(t, err)
	require.Len(t, resps, 4)

	for _, r := range resps[:3] {
		assert.True(t, r.Partial)
	}

	assert.False(t, resps[3].Partial)
	assert.Equal(t, "abc", resps[3].Message.Text)
}

func TestMockModel_ErrorAndRespond(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockModel("mock", "mock").AddError(boom)
	m.Respond = func(req Request) (core.AssistantMessage, error) {
		return core.AssistantMessage{Text: "dynamic"}, nil
	}

	_, err := drain(m.Generate(context.Background(), Request{}))
	assert.ErrorIs(t, err, boom)

	resps, err := drain(m.Generate(context.Background(), Request{}))
	require.NoError(t, err)
	assert.Equal(t, "dynamic", resps[0].Message.Text)
}
