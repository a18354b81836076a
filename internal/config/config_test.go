package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingExplicitPath(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))

	// An explicit path that does not exist is an error.
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfig_FromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := `
output_dir: /tmp/out
jobs: 8
strict: true
extract:
  ipm_tool: /opt/bin/ipm
  timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, 8, cfg.Jobs)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "/opt/bin/ipm", cfg.Extract.IPMTool)
	assert.Equal(t, 30*time.Second, cfg.Extract.Timeout)

	// Unset keys keep their defaults.
	assert.Equal(t, DefaultICGTool, cfg.Extract.ICGTool)
	assert.True(t, cfg.ExpandVirtualCalls)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs: 0\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoJobs)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := Config{
		OutputDir: "out",
		Jobs:      1,
		Extract: ExtractConfig{
			IPMTool: "ipm",
			ICGTool: "icg",
			Timeout: time.Minute,
		},
	}

	require.NoError(t, valid.Validate())

	broken := valid
	broken.Extract.Timeout = 0
	assert.ErrorIs(t, broken.Validate(), ErrNoTimeout)

	broken = valid
	broken.OutputDir = ""
	assert.ErrorIs(t, broken.Validate(), ErrNoOutput)

	broken = valid
	broken.Extract.ICGTool = ""
	assert.ErrorIs(t, broken.Validate(), ErrNoICGTool)
}
