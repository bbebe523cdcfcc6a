package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	configs "go_mock_resolver/internal/infra/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONFields(t *testing.T) {
	logger, err := NewLogger(configs.LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.WithField("rule_id", "r1").Info("matched")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "matched", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "r1", entry["rule_id"])
	assert.Contains(t, entry, "@timestamp")
	assert.Contains(t, entry, "pid")
	assert.Contains(t, entry["file"], "log_test.go:")
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := NewLogger(configs.LogConfig{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)
	logger.Warn("disk")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"disk"`)
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(configs.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestGetLoggerSingleton(t *testing.T) {
	assert.Same(t, GetLogger(), GetLogger())
}
