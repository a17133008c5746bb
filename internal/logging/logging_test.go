package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New("info", &buf), "service")

	logger.Debug("hidden")
	logger.Info("sale committed", "invoice", "INV-000001")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "sale committed", entry["msg"])
	assert.Equal(t, serviceName, entry["service"])
	assert.Equal(t, "service", entry["component"])
	assert.Equal(t, "INV-000001", entry["invoice"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
