// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

// ConfigFilePath is the default location for the daemon configuration file.
const ConfigFilePath = "/etc/sentinel/config.yaml"

// Config is the complete daemon runtime configuration: where persisted
// state lives, how to reach the external collaborators named in §1
// (probe executable, static catalog files), and the two control loops'
// tick periods.
type Config struct {
	// DataDir is the State Registry's root directory (intent.json,
	// device_registry.json, stream_stats.json live here).
	DataDir string `yaml:"data_dir" koanf:"data_dir"`

	Probe    ProbeConfig    `yaml:"probe" koanf:"probe"`
	Catalog  CatalogConfig  `yaml:"catalog" koanf:"catalog"`
	Pipeline PipelineConfig `yaml:"pipeline" koanf:"pipeline"`
	Input    InputConfig    `yaml:"input" koanf:"input"`
	Uplink   UplinkConfig   `yaml:"uplink" koanf:"uplink"`
	Log      LogConfig      `yaml:"log" koanf:"log"`
}

// ProbeConfig locates and bounds the hardware probe executable (§4.2).
type ProbeConfig struct {
	BinaryPath string        `yaml:"binary_path" koanf:"binary_path"`
	Timeout    time.Duration `yaml:"timeout" koanf:"timeout"`
}

// CatalogConfig locates the static destinations/presets files (§6).
type CatalogConfig struct {
	DestinationsPath string `yaml:"destinations_path" koanf:"destinations_path"`
	PresetsPath      string `yaml:"presets_path" koanf:"presets_path"`
}

// PipelineConfig locates the fan-out and encoder media pipeline binaries
// and their log directory.
type PipelineConfig struct {
	MulticastBinaryPath string `yaml:"multicast_binary_path" koanf:"multicast_binary_path"`
	LogDir              string `yaml:"log_dir" koanf:"log_dir"`
}

// InputConfig tunes the Input Supervisor (§4.5).
type InputConfig struct {
	TickInterval time.Duration `yaml:"tick_interval" koanf:"tick_interval"`
}

// UplinkConfig tunes the Uplink Supervisor (§4.6).
type UplinkConfig struct {
	TickInterval time.Duration `yaml:"tick_interval" koanf:"tick_interval"`
}

// LogConfig controls the daemons' structured logging.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`   // debug, info, warn, error
	Format string `yaml:"format" koanf:"format"` // "text" or "json"
}

// LoadConfig reads and parses the daemon configuration file.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 - Config path is from administrator-controlled configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// atomicFile abstracts file operations used by Save for testability.
type atomicFile interface {
	Write([]byte) (int, error)
	Sync() error
	Chmod(os.FileMode) error
	Close() error
	Name() string
}

// atomicCreateTemp is the injectable temp-file creator used by Save.
type atomicCreateTemp func(dir, pattern string) (atomicFile, error)

func defaultCreateTemp(dir, pattern string) (atomicFile, error) {
	return os.CreateTemp(dir, pattern) // #nosec G304
}

// Save writes the configuration to a YAML file via a temp-file-then-rename
// atomic replace.
func (c *Config) Save(path string) error {
	return c.saveWith(path, defaultCreateTemp)
}

func (c *Config) saveWith(path string, createTemp atomicCreateTemp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)

	tmpFile, err := createTemp(dir, ".config.*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp config file: %w", err)
	}
	// SEC-3: config may name filesystem paths; restrict to owner+group.
	// #nosec G302 - Config file restricted to owner+group for security
	if err := tmpFile.Chmod(0640); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil { // #nosec G703
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}

	success = true
	return nil
}

// Validate checks configuration for invalid values. A supervisor process
// that fails to read/validate its configuration at startup exits nonzero
// (§6's exit-code contract).
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Probe.BinaryPath == "" {
		return fmt.Errorf("probe.binary_path must not be empty")
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}
	if c.Catalog.DestinationsPath == "" {
		return fmt.Errorf("catalog.destinations_path must not be empty")
	}
	if c.Catalog.PresetsPath == "" {
		return fmt.Errorf("catalog.presets_path must not be empty")
	}
	if c.Input.TickInterval <= 0 {
		return fmt.Errorf("input.tick_interval must be positive")
	}
	if c.Uplink.TickInterval <= 0 {
		return fmt.Errorf("uplink.tick_interval must be positive")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults, matching
// §4.2/§4.5/§4.6's stated deadlines and periods.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "/var/lib/sentinel",
		Probe: ProbeConfig{
			BinaryPath: "/usr/local/bin/sentinel-probe",
			Timeout:    5 * time.Second,
		},
		Catalog: CatalogConfig{
			DestinationsPath: "/etc/sentinel/destinations.json",
			PresetsPath:      "/etc/sentinel/presets.json",
		},
		Pipeline: PipelineConfig{
			MulticastBinaryPath: "gst-launch-1.0",
			LogDir:              "/var/log/sentinel/pipelines",
		},
		Input: InputConfig{
			TickInterval: 2 * time.Second,
		},
		Uplink: UplinkConfig{
			TickInterval: 1 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
