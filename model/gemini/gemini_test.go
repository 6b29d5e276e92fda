package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

func TestBuildContents(t *testing.T) {
	contents, err := buildContents([]core.Message{
		core.UserMessage{Text: "weather?"},
		core.AssistantMessage{ToolCalls: []core.ToolCall{{ID: "c1", Name: "web_search", Arguments: `{"query":"weather Singapore"}`}}},
		core.ToolResultMessage{ToolCallID: "c1", Name: "web_search", Content: "31C"},
		core.AssistantMessage{Text: "It is 31C."},
	})
	require.NoError(t, err)
	require.Len(t, contents, 4)

	assert.Equal(t, genai.RoleUser, contents[0].Role)

	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "weather Singapore", contents[1].Parts[0].FunctionCall.Args["query"])

	assert.Equal(t, genai.RoleUser, contents[2].Role)
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "31C", contents[2].Parts[0].FunctionResponse.Response["output"])

	assert.Equal(t, "It is 31C.", contents[3].Parts[0].Text)
}

func TestBuildContents_BadArguments(t *testing.T) {
	_, err := buildContents([]core.Message{
		core.AssistantMessage{ToolCalls: []core.ToolCall{{ID: "c1", Name: "x", Arguments: "{not json"}}},
	})
	assert.Error(t, err)
}

func TestToResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		ResponseID: "r1",
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
				{Text: "Let me check. "},
				{FunctionCall: &genai.FunctionCall{ID: "f1", Name: "current_time", Args: map[string]any{}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
	}

	out, err := toResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "r1", out.ID)
	assert.Equal(t, "tool_calls", out.FinishReason)
	assert.Equal(t, "Let me check. ", out.Message.Text)
	require.Len(t, out.Message.ToolCalls, 1)
	assert.Equal(t, "{}", out.Message.ToolCalls[0].Arguments)
	assert.Equal(t, 5, out.Usage.TotalTokens)

	_, err = toResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{Function: model.FunctionDefinition{Name: "a"}}, {Function: model.FunctionDefinition{Name: "b"}}})
	require.Len(t, tools, 1)
	assert.Len(t, tools[0].FunctionDeclarations, 2)
}
