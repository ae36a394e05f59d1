package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ReturnsSaneBaseline(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxFileSize)
	assert.Contains(t, cfg.ExcludedDirs, ".git")
	assert.Contains(t, cfg.ExcludedExtensions, ".exe")
	assert.False(t, cfg.UseProcessPool)

	assert.Equal(t, 1000, cfg.Embedding.ChunkSize)
	assert.Equal(t, 150, cfg.Embedding.ChunkOverlap)
	assert.Equal(t, 10, cfg.Embedding.SimilarityTopK)
	assert.Equal(t, 0.2, cfg.Embedding.SimilarityThreshold)
	assert.True(t, cfg.Embedding.CacheModels)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MergesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	home := filepath.Join(dir, "home")
	require.NoError(t, os.MkdirAll(home, 0o755))
	t.Setenv("HOME", home)

	configPath := filepath.Join(dir, "config.yaml")
	content := "max_workers: 8\nmonitored_paths:\n  - " + filepath.Join(dir, "project") + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, 100, cfg.BatchSize, "unset fields keep their default")
	assert.Equal(t, []string{filepath.Join(dir, "project")}, cfg.MonitoredPaths)
}

func TestLoad_MissingFile_ReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_workers: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RejectsNonPositiveWorkers(t *testing.T) {
	cfg := Default()
	cfg.MaxWorkers = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsRelativeMonitoredPath(t *testing.T) {
	cfg := Default()
	cfg.MonitoredPaths = []string{"relative/path"}
	assert.Error(t, cfg.Validate())
}

func TestExpandPath_TildeExpandsToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got := expandPath("~/.fsindex/keyword")
	assert.Equal(t, filepath.Join(home, ".fsindex/keyword"), got)
}

func TestExpandPath_EnvVarExpansion(t *testing.T) {
	t.Setenv("FSINDEX_ROOT", "/opt/fsindex")
	got := expandPath("$FSINDEX_ROOT/data")
	assert.Equal(t, "/opt/fsindex/data", got)
}

func TestExpandPath_LeavesOrdinaryPathUnchanged(t *testing.T) {
	assert.Equal(t, "/var/lib/fsindex", expandPath("/var/lib/fsindex"))
}
