package procio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.log")

	w, err := NewRotatingWriter(path, WithMaxSize(20), WithMaxFiles(3))
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte("0123456789\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated file %s.1 to exist: %v", path, err)
	}
}

func TestRotatingWriterMaxFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.log")

	w, err := NewRotatingWriter(path, WithMaxSize(5), WithMaxFiles(2))
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	for i := 0; i < 20; i++ {
		_, _ = w.Write([]byte("abcdef\n"))
	}

	files, err := ListRotatedFiles(path)
	if err != nil {
		t.Fatalf("ListRotatedFiles: %v", err)
	}
	if len(files) > 2 {
		t.Errorf("expected at most 2 rotated files, got %d", len(files))
	}
}

func TestWriterSanitizesName(t *testing.T) {
	dir := t.TempDir()
	wc, err := Writer(dir, "cam1:youtube_main")
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	defer wc.(*RotatingWriter).Close()

	path := wc.(*RotatingWriter).Path()
	if strings.Contains(filepath.Base(path), ":") {
		t.Errorf("expected sanitized filename, got %q", path)
	}
}

func TestCleanupLogs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.log")

	w, err := NewRotatingWriter(path, WithMaxSize(5), WithMaxFiles(2))
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	for i := 0; i < 10; i++ {
		_, _ = w.Write([]byte("abcdef\n"))
	}
	w.Close()

	if err := CleanupLogs(path); err != nil {
		t.Fatalf("CleanupLogs: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected main log removed, stat err = %v", err)
	}
}
