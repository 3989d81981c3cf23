package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/john/memchat/internal/config"
)

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MEMCHAT_LOG_LEVEL", "")
	t.Setenv("MEMCHAT_LOG_FORMAT", "")
}

func TestJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	require.NoError(t, err)

	log.With("component", "poller").Info("loaded existing messages", "count", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry))
	require.Equal(t, "INFO", entry["level"])
	require.Equal(t, "loaded existing messages", entry["msg"])
	require.Equal(t, "poller", entry["component"])
	require.Equal(t, float64(3), entry["count"])
}

func TestLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	require.NoError(t, err)

	log.Info("ignored")
	require.Empty(t, strings.TrimSpace(out.String()))

	log.Error("kept")
	require.Contains(t, out.String(), "kept")
}

func TestTextFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "text", Level: "debug"}, &out)
	require.NoError(t, err)

	log.Debug("slot changed", "slot", 3)
	require.Contains(t, out.String(), "slot changed")
	require.Contains(t, out.String(), "slot=3")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MEMCHAT_LOG_LEVEL", "debug")
	t.Setenv("MEMCHAT_LOG_FORMAT", "json")

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "text", Level: "error"}, &out)
	require.NoError(t, err)

	log.Debug("visible")
	require.True(t, json.Valid(bytes.TrimSpace(out.Bytes())))
	require.Contains(t, out.String(), "visible")
}

func TestRejectsUnknownValues(t *testing.T) {
	unsetLoggingEnv(t)

	_, err := newWithWriter(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "unsupported log format")

	_, err = newWithWriter(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "unsupported log level")
}
