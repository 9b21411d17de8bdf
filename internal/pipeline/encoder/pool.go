// Package encoder supervises the encoder child processes the Uplink
// Supervisor starts per (input, destination) binding: each joins the
// input's multicast groups, encodes to H.264/AAC, muxes to FLV, and pushes
// RTMP(S) to a remote ingest endpoint. A sibling goroutine tails the
// child's stderr log and parses telemetry lines into a rate-limited
// snapshot (§4.4). As with the multicast pool, the pipeline's internal
// element construction is an out-of-scope collaborator — this package
// specifies only lifecycle and telemetry extraction.
package encoder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/sentinel-av/sentinel/internal/catalog"
	"github.com/sentinel-av/sentinel/internal/model"
	"github.com/sentinel-av/sentinel/internal/procio"
)

// StopTimeout is how long Stop waits for a graceful SIGTERM exit.
const StopTimeout = 5 * time.Second

// telemetryInterval rate-limits telemetry sink invocations to roughly once
// per second, per §4.4.
const telemetryInterval = 1 * time.Second

// State is the per-binding encoder lifecycle state from §4.6.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDead:
		return "dead"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// CommandBuilder constructs an encoder pipeline's argv.
type CommandBuilder func(multicastIP string, videoPort, audioPort int, rtmpURL string, preset catalog.Preset) (path string, args []string)

// TelemetrySink receives parsed telemetry snapshots, rate-limited to about
// once per second per running encoder.
type TelemetrySink func(model.Telemetry)

// Pool owns the set of currently running encoder pipelines, keyed by PID,
// and the logical-key → PID index the Uplink Supervisor looks bindings up
// by.
type Pool struct {
	logDir  string
	builder CommandBuilder
	sink    TelemetrySink
	logger  *slog.Logger

	mu      sync.Mutex
	handles map[int]*handle
	byKey   map[string]int
}

type handle struct {
	key       string
	cmd       *exec.Cmd
	logWriter io.WriteCloser
	cancel    context.CancelFunc
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

// WithTelemetrySink sets where parsed telemetry snapshots are delivered.
func WithTelemetrySink(sink TelemetrySink) Option {
	return func(p *Pool) { p.sink = sink }
}

// NewPool creates a Pool. logDir, if non-empty, is where each pipeline's
// stderr is captured and tailed for telemetry.
func NewPool(logDir string, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logDir:  logDir,
		logger:  logger,
		handles: make(map[int]*handle),
		byKey:   make(map[string]int),
		builder: DefaultCommandBuilder,
		sink:    func(model.Telemetry) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultCommandBuilder constructs a gst-launch-1.0 encoder pipeline per
// §4.4: keyframe interval 2*fps, zerolatency tuning, 128 kbps AAC, FLV mux,
// RTMP push with the trailing " live=1" the ingest element expects (§6).
func DefaultCommandBuilder(multicastIP string, videoPort, audioPort int, rtmpURL string, preset catalog.Preset) (string, []string) {
	keyIntMax := preset.FPS * 2
	args := []string{
		"udpsrc", fmt.Sprintf("multicast-group=%s", multicastIP), fmt.Sprintf("port=%d", videoPort), "!",
		"rtpvrawdepay", "!",
		"x264enc", fmt.Sprintf("bitrate=%d", preset.BitrateKbps), "tune=zerolatency", fmt.Sprintf("key-int-max=%d", keyIntMax), "!",
		"udpsrc", fmt.Sprintf("multicast-group=%s", multicastIP), fmt.Sprintf("port=%d", audioPort), "!",
		"rtpL16depay", "!",
		"avenc_aac", "bitrate=128000", "!",
		"flvmux", "!",
		"rtmpsink", fmt.Sprintf("location=%s live=1", rtmpURL),
	}
	return "gst-launch-1.0", args
}

// Start launches an encoder pipeline for the given logical key
// ("<input_id>:<destination_id>") and binding parameters. If key is already
// owned by a live PID, Start is a no-op returning that PID.
func (p *Pool) Start(ctx context.Context, key, multicastIP string, videoPort, audioPort int, rtmpURL string, preset catalog.Preset) (pid int, ok bool) {
	p.mu.Lock()
	if existing, exists := p.byKey[key]; exists && p.isAliveLocked(existing) {
		p.mu.Unlock()
		return existing, true
	}
	p.mu.Unlock()

	binary, args := p.builder(multicastIP, videoPort, audioPort, rtmpURL, preset)

	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var logWriter io.WriteCloser
	var logPath string
	if p.logDir != "" {
		rw, err := procio.Writer(p.logDir, fmt.Sprintf("uplink-%s", key))
		if err == nil {
			cmd.Stderr = rw
			logWriter = rw
			logPath = rw.(*procio.RotatingWriter).Path()
		}
	}

	if err := cmd.Start(); err != nil {
		p.logger.Error("encoder pipeline failed to start", "key", key, "error", err)
		if logWriter != nil {
			logWriter.Close()
		}
		return 0, false
	}

	tailCtx, cancel := context.WithCancel(context.Background())
	h := &handle{key: key, cmd: cmd, logWriter: logWriter, cancel: cancel}

	p.mu.Lock()
	p.handles[cmd.Process.Pid] = h
	p.byKey[key] = cmd.Process.Pid
	p.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		h.done = true
		p.mu.Unlock()
	}()

	if logPath != "" {
		go p.tailTelemetry(tailCtx, logPath)
	}

	return cmd.Process.Pid, true
}

// PidForKey returns the PID owning a logical key, if any.
func (p *Pool) PidForKey(key string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pid, ok := p.byKey[key]
	return pid, ok
}

// IsAlive reports whether pid still identifies a tracked, live pipeline. A
// dead handle is cleaned up as a side effect, per §4.4's "cleans up dead
// handles" contract.
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
		p.forgetLocked(pid)
		return false
	}
	if h.cmd.Process.Signal(syscall.Signal(0)) != nil {
		p.forgetLocked(pid)
		return false
	}
	return true
}

// Stop sends SIGTERM to the process group owning pid, waits up to
// StopTimeout, then forgets the handle regardless of outcome.
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

	p.mu.Lock()
	p.forgetLocked(pid)
	p.mu.Unlock()
	_ = h
}

// StopAll stops every tracked encoder pipeline.
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

func (p *Pool) forgetLocked(pid int) {
	h, ok := p.handles[pid]
	if !ok {
		return
	}
	h.cancel()
	if h.logWriter != nil {
		h.logWriter.Close()
	}
	delete(p.handles, pid)
	if p.byKey[h.key] == pid {
		delete(p.byKey, h.key)
	}
}

var (
	renderedRe  = regexp.MustCompile(`rendered:\s*(\d+),\s*dropped:\s*(\d+),\s*fps:\s*([\d.]+)`)
	fpsOnlyRe   = regexp.MustCompile(`current-fps:\s*([\d.]+)`)
	framesRe    = regexp.MustCompile(`frames:\s*(\d+)`)
)

func (p *Pool) tailTelemetry(ctx context.Context, logPath string) {
	snapshot := model.Telemetry{}
	startedAt := time.Now()
	var lastEmit time.Time

	tr := procio.NewTailReader(logPath, 250*time.Millisecond)
	_ = tr.Run(ctx, func(line string) {
		changed := false

		if m := renderedRe.FindStringSubmatch(line); m != nil {
			var rendered, dropped int
			var fps float64
			fmt.Sscanf(m[1], "%d", &rendered)
			fmt.Sscanf(m[2], "%d", &dropped)
			fmt.Sscanf(m[3], "%f", &fps)
			snapshot.FramesProcessed = rendered
			snapshot.FramesDropped = dropped
			snapshot.FPS = fps
			changed = true
		} else if m := fpsOnlyRe.FindStringSubmatch(line); m != nil {
			var fps float64
			fmt.Sscanf(m[1], "%f", &fps)
			snapshot.FPS = fps
			changed = true
		}

		if m := framesRe.FindStringSubmatch(line); m != nil {
			var frames int
			fmt.Sscanf(m[1], "%d", &frames)
			snapshot.FramesProcessed = frames
			changed = true
		}

		if !changed {
			return
		}

		now := time.Now()
		if now.Sub(lastEmit) < telemetryInterval {
			return
		}
		lastEmit = now

		snapshot.StreamDuration = int(now.Sub(startedAt).Seconds())
		snapshot.LastUpdate = float64(now.Unix())
		p.sink(snapshot)
	})
}

// Count returns the number of currently tracked encoder pipelines.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}
