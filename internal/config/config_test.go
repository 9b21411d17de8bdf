package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for empty data_dir")
	}
}

func TestValidateRejectsNonPositiveTickIntervals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"input tick zero", func(c *Config) { c.Input.TickInterval = 0 }},
		{"uplink tick negative", func(c *Config) { c.Uplink.TickInterval = -1 }},
		{"probe timeout zero", func(c *Config) { c.Probe.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for unknown log format")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/sentinel-test"
	cfg.Probe.BinaryPath = "/opt/sentinel/probe"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() = %v", err)
	}
	if loaded.DataDir != cfg.DataDir {
		t.Errorf("DataDir = %q, want %q", loaded.DataDir, cfg.DataDir)
	}
	if loaded.Probe.BinaryPath != cfg.Probe.BinaryPath {
		t.Errorf("Probe.BinaryPath = %q, want %q", loaded.Probe.BinaryPath, cfg.Probe.BinaryPath)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("LoadConfig() = nil error, want error for missing file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("not: [valid: yaml"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := LoadConfig(path)
	if err == nil {
		t.Error("LoadConfig() = nil error, want parse error")
	}
}

func TestSaveSetsRestrictivePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0640 {
		t.Errorf("permissions = %o, want 0640", perm)
	}
}
