package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefault(t *testing.T) {
	cfg := GenerateDefault()

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, ".opencode", cfg.ConfigDirName)
	assert.Equal(t, "opencode-cc", cfg.ProductDirName)
	assert.Equal(t, "session-registry.json", cfg.RegistryFileName)
	assert.Equal(t, "wt", cfg.WorktreeNamePrefix)
	assert.Equal(t, 5000, cfg.DebounceMS)
	assert.Equal(t, 400, cfg.ExcerptMaxChars)
	assert.Equal(t, []int{50, 100, 200, 400, 800, 1200}, cfg.WorktreeBackoffMS)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GenerateDefault()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingVersion(t *testing.T) {
	cfg := GenerateDefault()
	cfg.Version = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestValidate_MissingConfigDirName(t *testing.T) {
	cfg := GenerateDefault()
	cfg.ConfigDirName = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config_dir_name")
}

func TestValidate_InvalidDebounce(t *testing.T) {
	cfg := GenerateDefault()
	cfg.DebounceMS = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "debounce_ms")
}

func TestValidate_MissingBackoffSchedule(t *testing.T) {
	cfg := GenerateDefault()
	cfg.WorktreeBackoffMS = nil
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worktree_backoff_ms")
}

func TestLoadFromFile_NonExistent(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	invalidFile := filepath.Join(tmpDir, "invalid.json")
	require.NoError(t, os.WriteFile(invalidFile, []byte("{invalid json"), 0600))

	cfg, err := LoadFromFile(invalidFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := GenerateDefault()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "supervisor.json")

	require.NoError(t, cfg.SaveToFile(configPath))

	loaded, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, cfg.Version, loaded.Version)
	assert.Equal(t, cfg.DebounceMS, loaded.DebounceMS)
	assert.Equal(t, cfg.WorktreeBackoffMS, loaded.WorktreeBackoffMS)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
