package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogStopLossFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(&buf)

	LogStopLoss(logger, "NVDA", -6.25, "price below stop")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "stop_loss_executed", entry["event"])
	assert.Equal(t, "NVDA", entry["symbol"])
	assert.Equal(t, -6.25, entry["loss_percent"])
	assert.Equal(t, "warn", entry["level"])
}

func TestWithSessionAndClass(t *testing.T) {
	var buf bytes.Buffer
	logger := WithAssetClass(WithSession(NewTestLogger(&buf), "abc", "MORNING"), "crypto")

	logger.Info().Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc", entry["session_id"])
	assert.Equal(t, "MORNING", entry["session_type"])
	assert.Equal(t, "crypto", entry["asset_class"])
}

func TestNewLoggerWithConfig_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "robotrader.log")
	logger := NewLoggerWithConfig(LogConfig{Level: "warn", File: true, FilePath: path, MaxSize: 1})

	logger.Info().Msg("dropped")
	component := WithComponent(logger, "session")
	component.Warn().Msg("kept")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "session", entry["component"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel("verbose"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.TraceLevel, parseLevel("trace"))
}
