package asyncflow

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogger_RespectsMinimumLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelWarn, &buf)

	l.Log(LevelDebug, "should be dropped", nil)
	assert.Empty(t, buf.String())

	l.Log(LevelError, "should appear", map[string]any{"key": "value"})
	out := buf.String()
	assert.Contains(t, out, "should appear")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "ERROR")
}

func TestDefaultLogger_SetLevelIsDynamic(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelError, &buf)
	assert.False(t, l.IsEnabled(LevelInfo))

	l.SetLevel(LevelInfo)
	assert.True(t, l.IsEnabled(LevelInfo))
}

func TestNoOpLogger_NeverEnabled(t *testing.T) {
	l := NewNoOpLogger()
	assert.False(t, l.IsEnabled(LevelError))
	l.Log(LevelError, "ignored", nil) // must not panic
}

func TestDefaultLogger_GetDefaultLoggerFallsBackToNoOp(t *testing.T) {
	SetDefaultLogger(nil)
	l := getDefaultLogger()
	require.NotNil(t, l)
	assert.False(t, l.IsEnabled(LevelDebug))
}

func TestLogifaceLogger_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogifaceLogger(&buf, LevelInfo)

	l.Log(LevelInfo, "hello world", map[string]any{"n": 1})
	out := buf.String()
	assert.True(t, strings.Contains(out, "hello world"))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
}
