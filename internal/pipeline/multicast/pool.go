// Package multicast supervises the fan-out child processes the Input
// Supervisor starts per signal-bearing input: one process per input,
// copying raw capture frames to a deterministic loopback multicast address
// pair. The pipeline's internal element construction is an out-of-scope
// collaborator (§1); this package specifies only its lifecycle, following
// the spawn/liveness-check/SIGTERM-then-wait contract of §4.3, grounded on
// the same process-group supervision idiom the encoder pool and the
// teacher's stream manager both use.
package multicast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sentinel-av/sentinel/internal/procio"
)

// LivenessDelay is how long Start waits before checking whether the child
// exited immediately.
const LivenessDelay = 500 * time.Millisecond

// StopTimeout is how long Stop waits for a graceful SIGTERM exit before
// giving up on the handle.
const StopTimeout = 3 * time.Second

// CommandBuilder constructs the fan-out pipeline's argv for a given device
// and UDP assignment. The default builds a gst-launch-1.0 invocation; tests
// inject a fake builder.
type CommandBuilder func(deviceNumber int, multicastIP string, videoPort, audioPort int) (path string, args []string)

// Pool owns the set of currently running fan-out pipelines, keyed by PID.
type Pool struct {
	binaryPath string
	logDir     string
	builder    CommandBuilder
	logger     *slog.Logger

	mu       sync.Mutex
	handles  map[int]*handle
}

type handle struct {
	cmd       *exec.Cmd
	logWriter io.WriteCloser
	// done is set by the reaper goroutine under p.mu once cmd.Wait returns,
	// so isAliveLocked never reads cmd.ProcessState concurrently with the
	// goroutine that writes it.
	done bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithCommandBuilder overrides the default pipeline command construction.
func WithCommandBuilder(b CommandBuilder) Option {
	return func(p *Pool) { p.builder = b }
}

// NewPool creates a Pool. logDir, if non-empty, is where each pipeline's
// stderr is captured via a rotating writer.
func NewPool(binaryPath, logDir string, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		binaryPath: binaryPath,
		logDir:     logDir,
		logger:     logger,
		handles:    make(map[int]*handle),
		builder:    DefaultCommandBuilder,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultCommandBuilder constructs a gst-launch-1.0 fan-out pipeline
// generalized from a DeckLink-specific capture element to a placeholder
// "device-number" source argument; real deployments substitute a builder
// matching their capture hardware.
func DefaultCommandBuilder(deviceNumber int, multicastIP string, videoPort, audioPort int) (string, []string) {
	args := []string{
		"decklinkvideosrc", fmt.Sprintf("device-number=%d", deviceNumber), "!",
		"rtpvrawpay", "!",
		"udpsink", fmt.Sprintf("host=%s", multicastIP), fmt.Sprintf("port=%d", videoPort),
		"auto-multicast=true", "ttl-mc=1", "multicast-iface=lo",
		"decklinkaudiosrc", fmt.Sprintf("device-number=%d", deviceNumber), "!",
		"rtpL16pay", "!",
		"udpsink", fmt.Sprintf("host=%s", multicastIP), fmt.Sprintf("port=%d", audioPort),
		"auto-multicast=true", "ttl-mc=1", "multicast-iface=lo",
	}
	return "gst-launch-1.0", args
}

// Start spawns a fan-out pipeline for the given device and UDP assignment.
// It waits LivenessDelay and checks for an immediate exit; on early exit it
// returns (0, false). The child's stderr is not returned; when a log
// directory is configured it is kept in the pipeline's rotating log file.
func (p *Pool) Start(ctx context.Context, deviceNumber int, multicastIP string, videoPort, audioPort int) (pid int, ok bool) {
	binary, args := p.builder(deviceNumber, multicastIP, videoPort, audioPort)
	if binary == "" {
		binary = p.binaryPath
	}

	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var logWriter io.WriteCloser
	if p.logDir != "" {
		w, err := procio.Writer(p.logDir, fmt.Sprintf("input-device%d", deviceNumber))
		if err == nil {
			cmd.Stderr = w
			logWriter = w
		}
	}

	if err := cmd.Start(); err != nil {
		p.logger.Error("multicast pipeline failed to start", "device_number", deviceNumber, "error", err)
		if logWriter != nil {
			logWriter.Close()
		}
		return 0, false
	}

	h := &handle{cmd: cmd, logWriter: logWriter}

	p.mu.Lock()
	p.handles[cmd.Process.Pid] = h
	p.mu.Unlock()

	// Reap the process in the background regardless of outcome so it never
	// becomes a zombie; liveness is judged via process-group signalling.
	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		h.done = true
		p.mu.Unlock()
	}()

	time.Sleep(LivenessDelay)

	if !p.IsAlive(cmd.Process.Pid) {
		p.logger.Error("multicast pipeline exited immediately", "device_number", deviceNumber)
		p.forget(cmd.Process.Pid)
		return 0, false
	}

	return cmd.Process.Pid, true
}

// IsAlive reports whether pid still identifies a tracked, live pipeline.
func (p *Pool) IsAlive(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isAliveLocked(pid)
}

func (p *Pool) isAliveLocked(pid int) bool {
	h, ok := p.handles[pid]
	if !ok {
		return false
	}
	if h.done {
		// Process already reaped by the background Wait goroutine.
		delete(p.handles, pid)
		return false
	}
	return h.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Stop sends SIGTERM to the process group owning pid, waits up to
// StopTimeout, then forgets the handle regardless of outcome. Stop is
// idempotent for unknown PIDs.
func (p *Pool) Stop(pid int) {
	p.mu.Lock()
	h, ok := p.handles[pid]
	p.mu.Unlock()
	if !ok {
		return
	}

	_ = syscall.Kill(-pid, syscall.SIGTERM)

	deadline := time.After(StopTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-deadline:
			break wait
		case <-ticker.C:
			if !p.IsAlive(pid) {
				break wait
			}
		}
	}

	if p.IsAlive(pid) {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}

	p.forget(pid)
	_ = h
}

// StopAll stops every tracked pipeline.
func (p *Pool) StopAll() {
	p.mu.Lock()
	pids := make([]int, 0, len(p.handles))
	for pid := range p.handles {
		pids = append(pids, pid)
	}
	p.mu.Unlock()

	for _, pid := range pids {
		p.Stop(pid)
	}
}

func (p *Pool) forget(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.handles[pid]; ok {
		if h.logWriter != nil {
			h.logWriter.Close()
		}
		delete(p.handles, pid)
	}
}

// Count returns the number of currently tracked pipelines.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}
