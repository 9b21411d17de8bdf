package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/sentinel-av/sentinel/internal/config"
)

func TestRunRouting(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		errMsg  string
	}{
		{name: "no arguments shows help", args: []string{}, wantErr: false},
		{name: "help command", args: []string{"help"}, wantErr: false},
		{name: "unknown command", args: []string{"bogus"}, wantErr: true, errMsg: "unknown command"},
		{name: "set-intent without value", args: []string{"set-intent"}, wantErr: true},
		{name: "set-intent invalid value", args: []string{"set-intent", "maybe"}, wantErr: true, errMsg: "invalid intent"},
		{name: "set-configuration missing flags", args: []string{"set-configuration"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("run(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if tt.errMsg != "" && (err == nil || !strings.Contains(err.Error(), tt.errMsg)) {
				t.Errorf("run(%v) error = %v, want substring %q", tt.args, err, tt.errMsg)
			}
		})
	}
}

func testConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	path := filepath.Join(dir, "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	return path
}

func TestSetConfigurationThenSetIntent(t *testing.T) {
	cfgPath := testConfigPath(t)

	if err := run([]string{"set-configuration",
		"--config=" + cfgPath,
		"--device=0",
		"--input=input_0",
		"--destination=youtube:main",
		"--preset=hd_high",
	}); err != nil {
		t.Fatalf("set-configuration = %v", err)
	}

	if err := run([]string{"set-intent", "auto_stream", "--config=" + cfgPath}); err != nil {
		t.Fatalf("set-intent auto_stream = %v, want nil (configuration is complete)", err)
	}

	if err := run([]string{"status", "--config=" + cfgPath, "--json"}); err != nil {
		t.Fatalf("status --json = %v", err)
	}
}

func TestSetIntentAutoStreamRejectedWithoutConfiguration(t *testing.T) {
	cfgPath := testConfigPath(t)

	err := run([]string{"set-intent", "auto_stream", "--config=" + cfgPath})
	if err == nil {
		t.Fatal("set-intent auto_stream = nil, want error for incomplete configuration")
	}
	if !strings.Contains(err.Error(), "incomplete") {
		t.Errorf("error = %v, want mention of incomplete configuration", err)
	}
}

func TestSetIntentDisabledAlwaysAllowed(t *testing.T) {
	cfgPath := testConfigPath(t)

	if err := run([]string{"set-intent", "disabled", "--config=" + cfgPath}); err != nil {
		t.Fatalf("set-intent disabled = %v", err)
	}
}

func TestStatusOnEmptyRegistry(t *testing.T) {
	cfgPath := testConfigPath(t)

	if err := run([]string{"status", "--config=" + cfgPath}); err != nil {
		t.Fatalf("status = %v", err)
	}
}
