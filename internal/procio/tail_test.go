package procio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTailReaderDeliversNewLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stderr.log")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var lines []string
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewTailReader(path, 20*time.Millisecond).Run(ctx, func(line string) {
			lines = append(lines, line)
		})
	}()

	time.Sleep(50 * time.Millisecond)
	f.WriteString("rendered: 100, dropped: 2, fps: 29.9\n")
	f.Sync()
	time.Sleep(100 * time.Millisecond)
	f.WriteString("current-fps: 30.0\n")
	f.Sync()
	f.Close()

	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	if len(lines) < 2 {
		t.Fatalf("expected at least 2 lines delivered, got %d: %v", len(lines), lines)
	}
}

func TestTailReaderToleratesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.log")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewTailReader(path, 10*time.Millisecond).Run(ctx, func(string) {})
	if err == nil {
		t.Error("expected context deadline error, got nil")
	}
}
