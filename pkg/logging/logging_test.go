package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesPipelineLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, sync, err := New(Config{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	logger.WithField("entity", "patients").Info("stage complete")
	logger.Debug("filtered out")
	require.NoError(t, sync())

	data, err := os.ReadFile(filepath.Join(dir, "pipeline.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "stage complete")
	assert.Contains(t, string(data), "patients")
	assert.NotContains(t, string(data), "filtered out")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_WithoutLogsDir(t *testing.T) {
	logger, sync, err := New(Config{Level: "warn", Pretty: true})
	require.NoError(t, err)
	logger.Warn("console only")
	assert.NoError(t, sync())
}
