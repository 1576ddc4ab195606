package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewWriterLogger(t *testing.T) {
	t.Run("writes service, level, message and fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWriterLogger(&buf, "musen", zerolog.DebugLevel)

		l.Info("server started", Field{Key: "addr", Value: "127.0.0.1:5000"})

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "musen", lines[0]["service"])
		assert.Equal(t, "info", lines[0]["level"])
		assert.Equal(t, "server started", lines[0]["message"])
		assert.Equal(t, "127.0.0.1:5000", lines[0]["addr"])
		assert.Contains(t, lines[0], "time")
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWriterLogger(&buf, "musen", zerolog.WarnLevel)

		l.Debug("hidden")
		l.Info("hidden")
		l.Warn("shown")
		l.Error("shown too")

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 2)
		assert.Equal(t, "warn", lines[0]["level"])
		assert.Equal(t, "error", lines[1]["level"])
	})
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := NewWriterLogger(&buf, "musen", zerolog.DebugLevel)
	derived := base.With(Field{Key: "session", Value: 7})

	derived.Debug("received")
	base.Debug("plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.EqualValues(t, 7, lines[0]["session"])
	assert.NotContains(t, lines[1], "session")
}

func TestNop(t *testing.T) {
	l := Nop()
	require.NotNil(t, l)
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x", Field{Key: "k", Value: 1})
		l.With(Field{Key: "k", Value: 1}).Info("x")
	})
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "musen", zerolog.InfoLevel)
	assert.Same(t, l, OrNop(l))
}

func TestParseLevel(t *testing.T) {
	t.Run("known levels", func(t *testing.T) {
		for name, want := range map[string]zerolog.Level{
			"debug": zerolog.DebugLevel,
			"info":  zerolog.InfoLevel,
			"warn":  zerolog.WarnLevel,
			"error": zerolog.ErrorLevel,
		} {
			got, err := ParseLevel(name)
			require.NoError(t, err)
			assert.Equal(t, want, got, name)
		}
	})

	t.Run("empty is info", func(t *testing.T) {
		got, err := ParseLevel("")
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, got)
	})

	t.Run("unknown level fails", func(t *testing.T) {
		_, err := ParseLevel("loud")
		assert.Error(t, err)
	})
}
