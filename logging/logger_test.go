package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"":        LogLevelInfo,
		"warning": LogLevelWarn,
		" error ": LogLevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoopLogger_ConversationAttributes(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("engine").
		WithConversation("conv-1", "run-1")

	l.Info("engine.run.start", "step", "model")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "engine.run.start", rec["msg"])
	assert.Equal(t, "engine", rec["component"])
	assert.Equal(t, "conv-1", rec["conversation_id"])
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "model", rec["step"])
}

func TestLoopLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})
	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.LogToolCall("web_search", time.Millisecond, errors.New("boom"))
	assert.Contains(t, buf.String(), "tool.call.failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Debug("x")
	l.Error("y", "k", 1)
}
