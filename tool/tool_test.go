package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

func testToolContext(callID string) *core.ToolContext {
	return core.NewToolContext(context.Background(), "conv-1", "run-1", core.ToolCall{ID: callID}, core.NewState(), logging.NoOpLogger{})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	result, err := sumTool.Call(testToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "number"}},
		"required":   []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		t.Fatal("function must not run on invalid args")
		return nil, nil
	})

	_, err := tTool.Call(testToolContext("fc2"), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, core.CodeValidation, toolErr.Code)
	assert.Equal(t, "fc2", toolErr.CallID)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	boom := errors.New("boom")
	execTool := NewFunctionTool("fail", "Fails", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, boom
	})

	_, err := execTool.Call(testToolContext("fc3"), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, core.CodeExecution, toolErr.Code)
	assert.ErrorIs(t, err, boom)
}

func TestFunctionTool_CustomCodeKept(t *testing.T) {
	custom := NewFunctionTool("quota", "Quota", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, NewToolError("quota", "rate limited", "RATE_LIMITED")
	})

	_, err := custom.Call(testToolContext("fc4"), nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "RATE_LIMITED", toolErr.Code)
}

func TestFunctionToolFromStruct(t *testing.T) {
	type args struct {
		Unit string `json:"unit" enum:"celsius|fahrenheit"`
	}

	ft := NewFunctionToolFromStruct("convert", "Convert", args{}, func(_ *core.ToolContext, a map[string]any) (any, error) {
		return a["unit"], nil
	})

	_, err := ft.Call(testToolContext("fc5"), map[string]any{"unit": "kelvin"})
	assert.Error(t, err)

	out, err := ft.Call(testToolContext("fc6"), map[string]any{"unit": "celsius"})
	require.NoError(t, err)
	assert.Equal(t, "celsius", out)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}
