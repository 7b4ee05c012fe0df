// Package config provides configuration loading and management for tomosirt.
// It handles loading configuration from YAML or JSONC files, applies
// environment overrides and provides default values.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvNumThreads   = "SIRT_NUM_THREADS"
	EnvBackend      = "SIRT_BACKEND"
	EnvIterations   = "SIRT_ITERATIONS"
	EnvAccumulation = "SIRT_ACCUMULATION"
)

// ErrInvalid is wrapped by every validation and environment error.
var ErrInvalid = errors.New("config: invalid value")

// Config represents the application configuration
type Config struct {
	// Reconstruction parameters
	Reconstruction struct {
		// Iterations is the number of SIRT passes over every slice
		Iterations int `yaml:"iterations" json:"iterations"`

		// Workers is the worker pool width
		Workers int `yaml:"workers" json:"workers"`

		// Backend selects the executor: pool or serial
		Backend string `yaml:"backend" json:"backend"`

		// Accumulation selects how angle updates are combined: partitioned or locked
		Accumulation string `yaml:"accumulation" json:"accumulation"`
	} `yaml:"reconstruction" json:"reconstruction"`

	// Output parameters
	Output struct {
		// ExportSlices is a directory for per-slice images; empty disables export
		ExportSlices string `yaml:"exportSlices" json:"exportSlices"`

		// SliceFormat is tiff or png
		SliceFormat string `yaml:"sliceFormat" json:"sliceFormat"`
	} `yaml:"output" json:"output"`

	// Logging parameters
	Logging struct {
		Level       string `yaml:"level" json:"level"`
		File        string `yaml:"file" json:"file"`
		Development bool   `yaml:"development" json:"development"`
	} `yaml:"logging" json:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Reconstruction.Iterations = 10
	cfg.Reconstruction.Workers = runtime.NumCPU()
	cfg.Reconstruction.Backend = "pool"
	cfg.Reconstruction.Accumulation = "partitioned"

	cfg.Output.SliceFormat = "tiff"

	cfg.Logging.Level = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML, JSON or JSONC file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".json", ".jsonc":
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: invalid JSONC: %w", err)
		}
		if err := json.Unmarshal(std, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	return cfg, nil
}

// SaveConfig saves the configuration as YAML. The file is replaced
// atomically.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := atomic.WriteFile(configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// ApplyEnv loads envFile (if it exists) into the process environment and
// then overrides fields from the SIRT_* variables. Variables already set in
// the environment win over the file. An empty envFile means ".env".
func (c *Config) ApplyEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading %s: %w", envFile, err)
	}

	if v, ok := os.LookupEnv(EnvNumThreads); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvNumThreads, v)
		}
		c.Reconstruction.Workers = n
	}
	if v, ok := os.LookupEnv(EnvIterations); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvIterations, v)
		}
		c.Reconstruction.Iterations = n
	}
	if v, ok := os.LookupEnv(EnvBackend); ok {
		c.Reconstruction.Backend = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvAccumulation); ok {
		c.Reconstruction.Accumulation = strings.TrimSpace(v)
	}
	return nil
}

// Validate checks the ranges and names the rest of the program relies on.
func (c *Config) Validate() error {
	r := c.Reconstruction
	if r.Iterations < 0 {
		return fmt.Errorf("%w: iterations %d", ErrInvalid, r.Iterations)
	}
	if r.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalid, r.Workers)
	}
	switch strings.ToLower(r.Backend) {
	case "", "pool", "serial":
	default:
		return fmt.Errorf("%w: backend %q", ErrInvalid, r.Backend)
	}
	switch strings.ToLower(r.Accumulation) {
	case "", "partitioned", "locked", "mutex":
	default:
		return fmt.Errorf("%w: accumulation %q", ErrInvalid, r.Accumulation)
	}
	switch strings.ToLower(c.Output.SliceFormat) {
	case "", "tiff", "tif", "png":
	default:
		return fmt.Errorf("%w: slice format %q", ErrInvalid, c.Output.SliceFormat)
	}
	return nil
}
