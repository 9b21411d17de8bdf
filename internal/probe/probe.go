// Package probe invokes the external hardware probe executable and parses
// its JSON device inventory. The probe binary's internal construction is an
// out-of-scope collaborator (§1); this package only specifies the
// invocation contract: a hard 5 s deadline, JSON array on stdout, and a
// never-fail interface — any error is logged and treated as an empty
// inventory so a transient probe failure never disrupts the Input
// Supervisor's loop cadence (§4.2, §7).
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"time"

	"github.com/sentinel-av/sentinel/internal/model"
)

// DefaultTimeout is the probe invocation's hard deadline.
const DefaultTimeout = 5 * time.Second

// Invoker runs the probe executable on demand.
type Invoker struct {
	binaryPath string
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithTimeout overrides the probe's invocation deadline.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) { i.timeout = d }
}

// NewInvoker creates an Invoker for the probe executable at binaryPath.
func NewInvoker(binaryPath string, logger *slog.Logger, opts ...Option) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Invoker{
		binaryPath: binaryPath,
		timeout:    DefaultTimeout,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run executes the probe binary with no arguments and parses its stdout.
// It never returns an error to the caller: on timeout, non-zero exit, or
// malformed JSON, it logs and returns an empty inventory, matching §4.2's
// "never propagates the failure" contract.
func (i *Invoker) Run(ctx context.Context) []model.ProbedDevice {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, i.binaryPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		i.logger.Error("hardware probe failed", "error", err, "stderr", stderr.String())
		return []model.ProbedDevice{}
	}

	var devices []model.ProbedDevice
	if err := json.Unmarshal(stdout.Bytes(), &devices); err != nil {
		i.logger.Error("hardware probe produced malformed JSON", "error", err)
		return []model.ProbedDevice{}
	}
	return devices
}
