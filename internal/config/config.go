package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/derekpowell/cava-rep/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Data    DataConfig
	Sampler SamplerConfig
	Run     RunConfig
}

// DataConfig holds dataset file settings
type DataConfig struct {
	// File is the study data file, .csv or .xlsx
	File string
	// Sheet is the worksheet name for .xlsx files
	Sheet string
}

// SamplerConfig holds posterior sampler defaults, overridable per model
type SamplerConfig struct {
	Chains       int
	Iterations   int
	Warmup       int
	TargetAccept float64
	Seed         int64
}

// RunConfig holds pipeline execution settings
type RunConfig struct {
	// MaxConcurrentFits caps how many models fit at once
	MaxConcurrentFits int
	// OutputDir is where reports are written
	OutputDir string
}

// Load reads configuration from the environment, after sourcing a .env
// file when one exists. Missing variables fall back to defaults; malformed
// numeric values are an error rather than a silent default.
func Load() (*Config, error) {
	// .env is optional; environment variables win either way
	_ = godotenv.Load()

	cfg := &Config{
		Data: DataConfig{
			File:  getEnv("CAVA_DATA_FILE", "data/study.csv"),
			Sheet: getEnv("CAVA_DATA_SHEET", "Sheet1"),
		},
		Run: RunConfig{
			OutputDir: getEnv("CAVA_OUTPUT_DIR", "output"),
		},
	}

	var err error
	if cfg.Sampler.Chains, err = getEnvInt("CAVA_CHAINS", 4); err != nil {
		return nil, err
	}
	if cfg.Sampler.Iterations, err = getEnvInt("CAVA_ITERATIONS", 1000); err != nil {
		return nil, err
	}
	if cfg.Sampler.Warmup, err = getEnvInt("CAVA_WARMUP", 1000); err != nil {
		return nil, err
	}
	if cfg.Sampler.TargetAccept, err = getEnvFloat("CAVA_TARGET_ACCEPT", 0.9); err != nil {
		return nil, err
	}
	seed, err := getEnvInt("CAVA_SEED", 2025)
	if err != nil {
		return nil, err
	}
	cfg.Sampler.Seed = int64(seed)

	if cfg.Run.MaxConcurrentFits, err = getEnvInt("CAVA_MAX_CONCURRENT_FITS", 4); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Data.File == "" {
		return errors.New(errors.CodeConfigInvalid, "CAVA_DATA_FILE must not be empty")
	}
	if c.Sampler.Chains < 1 {
		return errors.New(errors.CodeConfigInvalid, "CAVA_CHAINS must be at least 1")
	}
	if c.Sampler.Iterations < 1 || c.Sampler.Warmup < 0 {
		return errors.New(errors.CodeConfigInvalid, "sampler iteration counts must be positive")
	}
	if c.Sampler.TargetAccept <= 0 || c.Sampler.TargetAccept >= 1 {
		return errors.New(errors.CodeConfigInvalid, "CAVA_TARGET_ACCEPT must be in (0, 1)")
	}
	if c.Run.MaxConcurrentFits < 1 {
		return errors.New(errors.CodeConfigInvalid, "CAVA_MAX_CONCURRENT_FITS must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "%s must be a number, got %q", key, v)
	}
	return f, nil
}
