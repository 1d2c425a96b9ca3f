package dlogger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGetLogger(t *testing.T) {
	for _, lvl := range []string{LogLevelDebug, LogLevelInfo, LogLevelWarn, ""} {
		l, err := GetLogger(lvl)
		require.NoErrorf(t, err, "level %q", lvl)
		require.NotNil(t, l)
	}

	l, err := GetLogger(LogLevelDebug)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = GetLogger(LogLevelNone)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.ErrorLevel))

	_, err = GetLogger("chatty")
	require.Error(t, err)
	assert.Panics(t, func() { _ = MustGetLogger("chatty") })
}

func TestLoggerFormats(t *testing.T) {
	for _, format := range []string{"", FormatJSON, FormatConsole} {
		l, err := New(LogLevelWarn, format)
		require.NoErrorf(t, err, "format %q", format)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	}

	_, err := New(LogLevelInfo, "logfmt")
	require.Error(t, err)
}
