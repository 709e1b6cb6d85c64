package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}

	assert.True(t, ValidLevel("Debug"))
	assert.False(t, ValidLevel("verbose"))
}

func TestNew(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "warn"}, &buf)
		require.NoError(t, err)

		l.Info("hidden")
		Module(l.Logger, "store").Warn("shown", "rows", 3)

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "msg=shown")
		assert.Contains(t, out, "module=store")
		assert.Contains(t, out, "rows=3")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Format: "json"}, &buf)
		require.NoError(t, err)

		l.Info("run finished", "anomalies", 4)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "run finished", rec["msg"])
		assert.Equal(t, 4.0, rec["anomalies"])
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := New(Config{Format: "xml"}, &bytes.Buffer{})
		assert.Error(t, err)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "energyguard.log")
		var buf bytes.Buffer
		l, err := New(Config{File: path}, &buf)
		require.NoError(t, err)

		l.With("run_id", "r1").Info("stored")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"run_id":"r1"`)
		assert.True(t, strings.Contains(buf.String(), "run_id=r1"))
	})
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(t.Context(), slog.LevelError))
	l.Error("dropped")
}
