package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	d := Default()
	assert.Equal(t, 0.6, d.Retrieval.Alpha)
	assert.Equal(t, 0.2, d.Retrieval.Beta)
	assert.Equal(t, 0.2, d.Retrieval.Gamma)
	assert.Equal(t, 60, d.Retrieval.RRFK)
	assert.Equal(t, 10, d.Agent.MaxIterations)
	assert.Equal(t, 3600, d.Memory.STMTTLSeconds)
	assert.Equal(t, 0.85, d.Memory.EpisodeSimilarityThreshold)
	assert.Equal(t, 3, d.Retry.MaxRetries)
	assert.Equal(t, 300, d.Agent.QueryTimeoutSeconds)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Agent.MaxIterations, cfg.Agent.MaxIterations)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  max_iterations: 4\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Agent.MaxIterations)
	assert.Equal(t, Default().Retrieval.Alpha, cfg.Retrieval.Alpha)
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("MAX_ITERATIONS", "2")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  max_iterations: 4\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Agent.MaxIterations)
}

func TestQueryTimeoutDefault(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, 300.0, cfg.QueryTimeout().Seconds())
}
