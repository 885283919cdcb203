package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivemirror/internal/config"
)

func TestBuildLogger_Levels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		flags   CLIFlags
		enabled slog.Level
		denied  slog.Level
	}{
		{name: "config info", level: "info", enabled: slog.LevelInfo, denied: slog.LevelDebug},
		{name: "config warn", level: "warn", enabled: slog.LevelWarn, denied: slog.LevelInfo},
		{name: "config error", level: "ERROR", enabled: slog.LevelError, denied: slog.LevelWarn},
		{name: "verbose wins", level: "error", flags: CLIFlags{Verbose: true}, enabled: slog.LevelDebug, denied: slog.LevelDebug - 4},
		{name: "quiet wins", level: "debug", flags: CLIFlags{Quiet: true}, enabled: slog.LevelError, denied: slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := buildLogger(config.LoggingConfig{LogLevel: tt.level, LogFormat: "text"}, tt.flags, &bytes.Buffer{})

			assert.True(t, logger.Handler().Enabled(context.Background(), tt.enabled))
			assert.False(t, logger.Handler().Enabled(context.Background(), tt.denied))
		})
	}
}

func TestBuildLogger_AutoFormatIsJSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer

	logger := buildLogger(config.LoggingConfig{LogLevel: "info", LogFormat: "auto"}, CLIFlags{}, &buf)
	logger.Info("hello", slog.String("drive_id", "d"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "d", rec["drive_id"])
}

func TestBuildLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := buildLogger(config.LoggingConfig{LogLevel: "info", LogFormat: "text"}, CLIFlags{}, &buf)
	logger.Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}

func TestRoot_VerboseAndQuietExclusive(t *testing.T) {
	isolateEnv(t)

	_, _, err := executeCmd(t, "-v", "-q", "config", "show")
	assert.Error(t, err)
}

func TestCLIContextFrom_Missing(t *testing.T) {
	_, err := cliContextFrom(context.Background())
	assert.Error(t, err)
}

func TestStatusf_Quiet(t *testing.T) {
	var buf bytes.Buffer

	cc := &CLIContext{Stderr: &buf}
	cc.Statusf("one %d\n", 1)

	cc.Flags.Quiet = true
	cc.Statusf("two\n")

	assert.Equal(t, "one 1\n", buf.String())
}
