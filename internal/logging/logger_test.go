package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONFormatter(t *testing.T) {
	config := DefaultConfig()
	config.Format = "json"
	config.Level = "debug"

	logger, err := New(config)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	ForExperiment(logger, "demo").WithField("dataset", "iris").Info("fold done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fold done", entry["message"])
	assert.Equal(t, "demo", entry["experiment"])
	assert.Equal(t, "iris", entry["dataset"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	config := DefaultConfig()
	config.Level = "loud"
	_, err := New(config)
	assert.Error(t, err)
}

func TestFileOutputRotatesUnderLogDir(t *testing.T) {
	dir := t.TempDir()
	config := DefaultConfig()
	config.Output = "file"
	config.LogDir = filepath.Join(dir, "logs")

	logger, err := New(config)
	require.NoError(t, err)
	logger.Info("written to file")

	content, err := os.ReadFile(filepath.Join(config.LogDir, "cacp.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "written to file")
}
