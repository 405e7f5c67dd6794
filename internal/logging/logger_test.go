package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autodrive/internal/config"
)

func TestNew_JSONWithFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithOutput(config.LogConfig{Level: "debug", Format: "json"}, &buf)

	logger.WithField("trip_id", "trip-1").Debug("trip created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trip-1", entry["trip_id"])
	assert.Equal(t, "trip created", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	t.Parallel()

	logger := NewWithOutput(config.LogConfig{Level: "chatty"}, &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNew_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithOutput(config.LogConfig{Level: "info", Format: "text"}, &buf)
	logger.Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
}
