package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	withTempDir(t)
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "migrates_dummy_", cfg.DummyIndexPrefix)
	assert.Equal(t, "migrates_history", cfg.HistoryIndex)
	assert.Equal(t, "migration", cfg.HistoryDocType)
	assert.False(t, cfg.Dry)
	assert.False(t, cfg.Yes)
}

func TestLoad_ConfigFileMergesOverDefaults(t *testing.T) {
	dir := withTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "migrates.yaml"), []byte(
		"dummy-index-prefix: shadow_\nhistory-index: custom_history\n",
	), 0o644))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "shadow_", cfg.DummyIndexPrefix)
	assert.Equal(t, "custom_history", cfg.HistoryIndex)
}

func TestLoad_EnvOverridesConfigFile(t *testing.T) {
	dir := withTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "migrates.yaml"), []byte(
		"history-index: from_file\n",
	), 0o644))
	t.Setenv("MIGRATES_HISTORY_INDEX", "from_env")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.HistoryIndex)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	dir := withTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "migrates.yaml"), []byte(
		"history-index: from_file\n",
	), 0o644))
	t.Setenv("MIGRATES_HISTORY_INDEX", "from_env")

	cfg, err := Load(map[string]any{"history-index": "from_flag"})
	require.NoError(t, err)
	assert.Equal(t, "from_flag", cfg.HistoryIndex)
}

func TestLoad_DryImpliesYes(t *testing.T) {
	withTempDir(t)
	cfg, err := Load(map[string]any{"dry": true})
	require.NoError(t, err)
	assert.True(t, cfg.Dry)
	assert.True(t, cfg.Yes)
}

func TestLoad_WiresOrchestratorConfig(t *testing.T) {
	withTempDir(t)
	cfg, err := Load(map[string]any{
		"dummy-index-prefix": "pfx_",
		"detail":             []string{"widgets*"},
		"verbose":            true,
	})
	require.NoError(t, err)
	assert.Equal(t, "pfx_", cfg.Orchestrator.ShadowPrefix)
	assert.Equal(t, []string{"widgets*"}, cfg.Orchestrator.DetailPatterns)
	assert.True(t, cfg.Orchestrator.Verbose)
	assert.Equal(t, "migrates_history", cfg.Orchestrator.History.Index)
}

// withTempDir chdirs into a fresh temp directory for the duration of the
// test so migrates.yaml discovery never picks up a file from the repo the
// test happens to run inside.
func withTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	return dir
}
