// Package config provides configuration loading for scigo-spatial.
// It handles loading configuration from YAML files, applies environment
// overrides and provides default values.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	// EnvDataDir overrides the cache directory of downloaded example data.
	EnvDataDir = "SKNNRSPATIAL_DATA_DIR"
	// EnvLogLevel overrides the log level.
	EnvLogLevel = "SKNNRSPATIAL_LOG_LEVEL"
	// EnvWorkers overrides the number of chunks computed concurrently.
	EnvWorkers = "SKNNRSPATIAL_WORKERS"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Data controls fetching and caching of the example datasets
	Data struct {
		// Dir is the local cache directory
		Dir string `yaml:"dir"`

		// BaseURL is the remote file host. "{version}" is replaced by Version
		BaseURL string `yaml:"baseURL"`

		// Version selects the data release
		Version string `yaml:"version"`

		// Retries is the number of additional attempts after a failed download
		Retries int `yaml:"retries"`
	} `yaml:"data"`

	// Compute controls chunked execution
	Compute struct {
		// Workers is the maximum number of chunks computed at once
		Workers int `yaml:"workers"`

		// ChunkSize is the default square chunk edge for lazy images
		ChunkSize int `yaml:"chunkSize"`

		// NaNFill replaces NaN samples before they reach an estimator
		NaNFill float64 `yaml:"nanFill"`
	} `yaml:"compute"`

	// Log controls logging output
	Log struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// DataURL is the default remote location of the packaged rasters.
const DataURL = "https://github.com/lemma-osu/sknnr-spatial/raw/{version}/src/sknnr_spatial/datasets/data"

// DefaultCacheDir returns the OS cache directory for downloaded data.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "sknnr-spatial")
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Data.Dir = DefaultCacheDir()
	cfg.Data.BaseURL = DataURL
	cfg.Data.Version = "main"
	cfg.Data.Retries = 3

	cfg.Compute.Workers = runtime.NumCPU()
	cfg.Compute.ChunkSize = 64
	cfg.Compute.NaNFill = 0.0

	cfg.Log.Level = "warn"

	return cfg
}

// Load loads configuration from a YAML file and applies environment
// overrides. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Wrap(err, "error reading config file")
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrap(err, "error parsing config file")
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		c.Data.Dir = dir
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Log.Level = level
	}
	if workers := os.Getenv(EnvWorkers); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", EnvWorkers)
		}
		c.Compute.Workers = n
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Data.Retries < 0 {
		return errors.NewValueError("config", "data.retries must be >= 0")
	}
	if c.Compute.Workers < 1 {
		return errors.NewValueError("config", "compute.workers must be >= 1")
	}
	if c.Compute.ChunkSize < 1 {
		return errors.NewValueError("config", "compute.chunkSize must be >= 1")
	}
	return nil
}

// Save writes the configuration to a YAML file, creating parent directories.
func Save(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}
	return nil
}
