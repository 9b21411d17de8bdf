package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFakeProbe(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunParsesValidOutput(t *testing.T) {
	path := writeFakeProbe(t, `echo '[{"device_number":0,"name":"Card","inputs":[{"id":"input_0","port":"SDI 1","signal_detected":true,"format":"1920x1080@60"}]}]'`)

	inv := NewInvoker(path, nil).Run(context.Background())
	if len(inv) != 1 || inv[0].Inputs[0].ID != "input_0" {
		t.Errorf("Run() = %+v, unexpected result", inv)
	}
}

func TestRunReturnsEmptyOnNonZeroExit(t *testing.T) {
	path := writeFakeProbe(t, `exit 1`)

	inv := NewInvoker(path, nil).Run(context.Background())
	if len(inv) != 0 {
		t.Errorf("Run() = %+v, want empty", inv)
	}
}

func TestRunReturnsEmptyOnMalformedJSON(t *testing.T) {
	path := writeFakeProbe(t, `echo 'not json'`)

	inv := NewInvoker(path, nil).Run(context.Background())
	if len(inv) != 0 {
		t.Errorf("Run() = %+v, want empty", inv)
	}
}

func TestRunReturnsEmptyOnTimeout(t *testing.T) {
	path := writeFakeProbe(t, `sleep 2; echo '[]'`)

	inv := NewInvoker(path, nil, WithTimeout(50*time.Millisecond)).Run(context.Background())
	if len(inv) != 0 {
		t.Errorf("Run() = %+v, want empty on timeout", inv)
	}
}
