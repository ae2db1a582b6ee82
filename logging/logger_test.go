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

func TestContextLogger_AttachesAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("flow").
		WithConversation("c-1")

	l.Info("flow.turn.start", "input_len", 5)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "flow.turn.start", rec["msg"])
	assert.Equal(t, "flow", rec["component"])
	assert.Equal(t, "c-1", rec["conversation_id"])
	assert.EqualValues(t, 5, rec["input_len"])
}

func TestContextLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Output: &buf})

	l.Info("ignored")
	assert.Zero(t, buf.Len())

	l.LogToolCall("search", time.Millisecond, errors.New("boom"))
	assert.Contains(t, buf.String(), "tool.call.failed")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"WARN":    LogLevelWarn,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
		"":        LogLevelInfo,
		"bogus":   LogLevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNoOpLogger_ImplementsLogger(t *testing.T) {
	var _ Logger = NoOpLogger{}
	var _ Logger = (*ContextLogger)(nil)
	var _ Logger = (*SlogAdapter)(nil)
}
