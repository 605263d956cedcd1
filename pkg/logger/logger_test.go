package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.InfoLevel},
		{1, zapcore.DebugLevel},
		{3, zapcore.DebugLevel},
		{-1, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity), "verbosity %d", tt.verbosity)
	}
}

func TestNew(t *testing.T) {
	for _, json := range []bool{true, false} {
		l, err := New(json, 0)
		require.NoError(t, err)
		require.NotNil(t, l)
		assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	}

	l, err := New(false, 1)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestConsoleKeepsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsole(zapcore.AddSync(&buf), zapcore.InfoLevel)
	l.Info("rewrote classes", zap.Int("classes", 3), zap.String("owner", "com/example/Foo"))
	l.Debug("hidden")
	require.NoError(t, l.Sync())

	out := buf.String()
	assert.Contains(t, out, "rewrote classes")
	assert.Contains(t, out, `"classes": 3`)
	assert.Contains(t, out, `"owner": "com/example/Foo"`)
	assert.NotContains(t, out, "hidden")
}
