package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer()

	logger.Info("dropped")
	logger.WithField("run_id", "abc").Warn("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "abc", entry["run_id"])
	assert.Equal(t, "warning", entry["level"])
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger, closer, err := New(Config{Level: "chatty"}, &bytes.Buffer{})
	require.NoError(t, err)
	defer closer()
	assert.Equal(t, log.InfoLevel, logger.GetLevel())
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ingestion.log")
	var buf bytes.Buffer

	logger, closer, err := New(Config{File: path}, &buf)
	require.NoError(t, err)
	logger.Info("Ingestion complete")
	require.NoError(t, closer())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Ingestion complete")
	assert.Contains(t, buf.String(), "Ingestion complete")
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard().Error("nothing") })
}

func TestSetupWriter_ConfiguresStandardLogger(t *testing.T) {
	std := log.StandardLogger()
	prevOut, prevLevel, prevFormatter := std.Out, std.GetLevel(), std.Formatter
	t.Cleanup(func() {
		std.SetOutput(prevOut)
		std.SetLevel(prevLevel)
		std.SetFormatter(prevFormatter)
	})

	var buf bytes.Buffer
	closer, err := SetupWriter(Config{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer()

	log.Debug("to the writer")
	assert.Contains(t, buf.String(), `"msg":"to the writer"`)
}
