// Package registry implements Sentinel's State Registry: a file-backed,
// multi-reader/multi-writer key→document store. Each logical document name
// maps to one JSON file in a data directory; every mutation is serialised
// per-name and replaces the file atomically so a concurrent reader in
// another process never observes a torn write.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// Registry is a process-wide handle over a data directory.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex // protects the locks map itself
	locks map[string]*sync.Mutex
}

// New creates a Registry rooted at dir. The directory is created if it does
// not already exist.
func New(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}
	return &Registry{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (r *Registry) lockFor(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.locks[name]
	if !ok {
		m = &sync.Mutex{}
		r.locks[name] = m
	}
	return m
}

func (r *Registry) path(name string) string {
	return filepath.Join(r.dir, name)
}

// Read parses the named document into out. If the file does not exist, out
// is left untouched (the caller should have already set it to the intended
// default). Read never returns an error for a missing file or malformed
// JSON — both are logged and treated as "use the default".
func (r *Registry) Read(name string, out interface{}) {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(r.path(name))
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Error("registry read failed", "document", name, "error", err)
		}
		return
	}

	if err := json.Unmarshal(data, out); err != nil {
		r.logger.Error("registry document malformed", "document", name, "error", err)
	}
}

// Write serialises doc as pretty-printed JSON and atomically replaces the
// named document's file. Write failures are logged and swallowed: the
// caller may retry on the next reconciliation tick, per §7's error policy.
func (r *Registry) Write(name string, doc interface{}) {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if err := r.writeLocked(name, doc); err != nil {
		r.logger.Error("registry write failed", "document", name, "error", err)
	}
}

func (r *Registry) writeLocked(name string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", name, err)
	}

	path := r.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace document %s: %w", name, err)
	}
	return nil
}

// Update performs a read-modify-write: it decodes the stored document into
// current (which is left as passed if nothing exists yet), lets mutate
// adjust it in place, and writes the result back —
// all while holding the document's lock, so interleaved Update calls from
// concurrent goroutines serialise into some total order.
func (r *Registry) Update(name string, current interface{}, mutate func()) {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(r.path(name))
	if err == nil {
		if jerr := json.Unmarshal(data, current); jerr != nil {
			r.logger.Error("registry document malformed on update", "document", name, "error", jerr)
		}
	} else if !os.IsNotExist(err) {
		r.logger.Error("registry read failed on update", "document", name, "error", err)
	}

	mutate()

	if err := r.writeLocked(name, current); err != nil {
		r.logger.Error("registry write failed on update", "document", name, "error", err)
	}
}

// Documents lists the logical document names currently known to the
// registry's in-process lock table, for introspection. It reflects
// documents touched this process lifetime, not necessarily every file on
// disk.
func (r *Registry) Documents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.locks))
	for name := range r.locks {
		names = append(names, name)
	}
	return names
}

// Well-known document names, per §6.
const (
	DocIntent     = "intent.json"
	DocInventory  = "device_registry.json"
	DocTelemetry  = "stream_stats.json"
	DocDiagnostic = "diagnostic.json"
)
