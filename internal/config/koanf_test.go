package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestKoanfConfigLoadsYAMLFile(t *testing.T) {
	path := writeYAML(t, "data_dir: /srv/sentinel\nprobe:\n  binary_path: /opt/probe\n  timeout: 5s\n")

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	if err != nil {
		t.Fatalf("NewKoanfConfig() = %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.DataDir != "/srv/sentinel" {
		t.Errorf("DataDir = %q, want /srv/sentinel", cfg.DataDir)
	}
	if cfg.Probe.BinaryPath != "/opt/probe" {
		t.Errorf("Probe.BinaryPath = %q, want /opt/probe", cfg.Probe.BinaryPath)
	}
}

func TestKoanfConfigEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, "data_dir: /srv/sentinel\n")

	t.Setenv("SENTINEL_DATA_DIR", "/override/sentinel")

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	if err != nil {
		t.Fatalf("NewKoanfConfig() = %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.DataDir != "/override/sentinel" {
		t.Errorf("DataDir = %q, want /override/sentinel (env override)", cfg.DataDir)
	}
}

func TestKoanfConfigEnvNestedSection(t *testing.T) {
	path := writeYAML(t, "data_dir: /srv/sentinel\n")

	t.Setenv("SENTINEL_INPUT_TICK_INTERVAL", "3s")

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	if err != nil {
		t.Fatalf("NewKoanfConfig() = %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Input.TickInterval != 3*time.Second {
		t.Errorf("Input.TickInterval = %v, want 3s", cfg.Input.TickInterval)
	}
}

func TestKoanfConfigMissingFileUsesDefaults(t *testing.T) {
	// No YAML file and no env vars: DefaultConfig fills in every required
	// field, so Load should still succeed.
	kc, err := NewKoanfConfig()
	if err != nil {
		t.Fatalf("NewKoanfConfig() = %v", err)
	}
	if _, err := kc.Load(); err != nil {
		t.Errorf("Load() = %v, want nil (defaults satisfy validation)", err)
	}
}

func TestKoanfConfigReload(t *testing.T) {
	path := writeYAML(t, "data_dir: /srv/one\n")

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	if err != nil {
		t.Fatalf("NewKoanfConfig() = %v", err)
	}

	if err := os.WriteFile(path, []byte("data_dir: /srv/two\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := kc.Reload(); err != nil {
		t.Fatalf("Reload() = %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.DataDir != "/srv/two" {
		t.Errorf("DataDir after reload = %q, want /srv/two", cfg.DataDir)
	}
}

func TestKoanfConfigWatchRequiresFilePath(t *testing.T) {
	kc, err := NewKoanfConfig()
	if err != nil {
		t.Fatalf("NewKoanfConfig() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := kc.Watch(ctx, func(string, error) {}); err == nil {
		t.Error("Watch() = nil error, want error when no file path configured")
	}
}
