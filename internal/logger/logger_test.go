package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantJSON    bool
	}{
		{name: "production uses json", environment: "production", wantJSON: true},
		{name: "development uses pretty", environment: "development", wantJSON: false},
		{name: "empty uses pretty", environment: "", wantJSON: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Level: slog.LevelInfo, Environment: tt.environment, Writer: &buf})
			l.Info("sync completed", "device_id", "phone")

			if tt.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"sync completed"`)
				assert.Contains(t, buf.String(), `"device_id":"phone"`)
			} else {
				assert.Contains(t, buf.String(), "INF")
				assert.Contains(t, buf.String(), "device_id=phone")
			}
		})
	}
}

func TestNew_ExplicitFormatWins(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Environment: "development", Writer: &buf})
	l.Info("test")

	assert.Contains(t, buf.String(), `"msg":"test"`)
}

func TestNew_FileOutputIsJSON(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "tickit-sync.log")

	l := New(Config{
		Level:  slog.LevelInfo,
		Writer: &console,
		File:   FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1},
	})
	l.Component("api").Info("request handled", "status", 200)
	l.Debug("filtered out")
	require.NoError(t, l.Close())

	assert.Contains(t, console.String(), "component=api")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"request handled"`)
	assert.Contains(t, string(data), `"component":"api"`)
	assert.NotContains(t, string(data), "filtered out")
	assert.NotContains(t, string(data), "\033[")
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	l := New(Config{Writer: &bytes.Buffer{}})
	assert.NoError(t, l.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestValidLevel(t *testing.T) {
	assert.True(t, ValidLevel("Warn"))
	assert.False(t, ValidLevel("verbose"))
}

func TestPrettyHandler_Enabled(t *testing.T) {
	handler := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})

	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelError))
}

func TestPrettyHandler_LevelFormatting(t *testing.T) {
	tests := []struct {
		level      slog.Level
		wantString string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelError, "ERR"},
	}

	for _, tt := range tests {
		t.Run(tt.wantString, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			logger.Log(context.Background(), tt.level, "test")

			assert.Contains(t, buf.String(), tt.wantString)
		})
	}
}

func TestPrettyHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	handler := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	assert.Equal(t, handler, handler.WithGroup(""))

	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("service", "tickit-sync")}).WithGroup("sync"))
	logger.Info("merged", "conflicts", 2)

	output := buf.String()
	assert.Contains(t, output, "service=tickit-sync")
	assert.Contains(t, output, "sync.conflicts=2")
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Writer: &buf})

	l.WithError(errors.New("disk full")).Error("commit failed")

	assert.Contains(t, buf.String(), `"error":"disk full"`)
}
