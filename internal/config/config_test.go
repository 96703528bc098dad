package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/study.csv", cfg.Data.File)
	assert.Equal(t, "Sheet1", cfg.Data.Sheet)
	assert.Equal(t, 4, cfg.Sampler.Chains)
	assert.Equal(t, 1000, cfg.Sampler.Iterations)
	assert.Equal(t, 1000, cfg.Sampler.Warmup)
	assert.InDelta(t, 0.9, cfg.Sampler.TargetAccept, 1e-12)
	assert.Equal(t, int64(2025), cfg.Sampler.Seed)
	assert.Equal(t, 4, cfg.Run.MaxConcurrentFits)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CAVA_DATA_FILE", "other.xlsx")
	t.Setenv("CAVA_CHAINS", "8")
	t.Setenv("CAVA_TARGET_ACCEPT", "0.8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "other.xlsx", cfg.Data.File)
	assert.Equal(t, 8, cfg.Sampler.Chains)
	assert.InDelta(t, 0.8, cfg.Sampler.TargetAccept, 1e-12)
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("CAVA_CHAINS", "four")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAVA_CHAINS")
}

func TestLoadValidatesRanges(t *testing.T) {
	t.Setenv("CAVA_TARGET_ACCEPT", "1.5")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadValidatesChains(t *testing.T) {
	t.Setenv("CAVA_CHAINS", "0")

	_, err := Load()
	assert.Error(t, err)
}
