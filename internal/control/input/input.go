// Package input implements the Input Supervisor: the reconciliation loop
// that probes capture hardware every 2 s, merges the observation into the
// device inventory document, and starts or stops per-input multicast
// fan-out pipelines so that udp.status tracks signal_detected (§4.5).
package input

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinel-av/sentinel/internal/model"
	"github.com/sentinel-av/sentinel/internal/pipeline/multicast"
	"github.com/sentinel-av/sentinel/internal/probe"
	"github.com/sentinel-av/sentinel/internal/registry"
)

// TickInterval is the Input Supervisor's reconciliation period.
const TickInterval = 2 * time.Second

// Service implements supervisor.Service.
type Service struct {
	reg    *registry.Registry
	probe  *probe.Invoker
	pool   *multicast.Pool
	logger *slog.Logger
	tick   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithTickInterval overrides the default 2 s reconciliation period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) { s.tick = d }
}

// NewService builds the Input Supervisor.
func NewService(reg *registry.Registry, inv *probe.Invoker, pool *multicast.Pool, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{reg: reg, probe: inv, pool: pool, logger: logger, tick: TickInterval}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies this service to the supervisor.
func (s *Service) Name() string { return "input-supervisor" }

// Run resets stale liveness state, then reconciles every tick until ctx is
// cancelled, stopping all owned pipelines before returning.
func (s *Service) Run(ctx context.Context) error {
	s.resetStaleState()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.pool.StopAll()
			return nil
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

// resetStaleState marks every tracked input stopped on startup: any
// pipeline PID recorded from a previous process incarnation cannot be
// trusted (§4.5).
func (s *Service) resetStaleState() {
	var inv model.DeviceRegistry
	s.reg.Read(registry.DocInventory, &inv)
	if inv.Devices == nil {
		return
	}
	for id, d := range inv.Devices {
		for i := range d.Inputs {
			d.Inputs[i].UDP.Status = model.UDPStopped
			d.Inputs[i].UDP.PipelinePID = 0
		}
		inv.Devices[id] = d
	}
	s.reg.Write(registry.DocInventory, inv)
}

// reconcile runs one probe → merge → transition → write cycle (§4.5 steps
// 1-5).
func (s *Service) reconcile(ctx context.Context) {
	observed := s.probe.Run(ctx)

	var current model.DeviceRegistry
	s.reg.Update(registry.DocInventory, &current, func() {
		if current.Devices == nil {
			current.Devices = map[string]model.Device{}
		}

		seen := map[string]bool{}
		for _, pd := range observed {
			id := model.DeviceID(pd.DeviceNumber)
			seen[id] = true

			dev, exists := current.Devices[id]
			if !exists {
				dev = model.Device{
					Name:         pd.Name,
					DeviceNumber: pd.DeviceNumber,
					Inputs:       make([]model.Input, len(pd.Inputs)),
				}
				for idx, pi := range pd.Inputs {
					dev.Inputs[idx] = model.Input{
						ID:   pi.ID,
						Port: pi.Port,
						UDP:  model.AssignUDP(pd.DeviceNumber, idx),
					}
				}
			}

			for idx, pi := range pd.Inputs {
				if idx >= len(dev.Inputs) {
					dev.Inputs = append(dev.Inputs, model.Input{
						ID:   pi.ID,
						Port: pi.Port,
						UDP:  model.AssignUDP(pd.DeviceNumber, idx),
					})
				}
				dev.Inputs[idx].SignalDetected = pi.SignalDetected
				dev.Inputs[idx].Format = pi.Format
			}

			dev.Name = pd.Name
			current.Devices[id] = dev
		}

		// Devices no longer reported by the probe have their inputs' signal
		// forced false; nothing is removed from the registry (§4.5).
		for id, dev := range current.Devices {
			if seen[id] {
				continue
			}
			for i := range dev.Inputs {
				dev.Inputs[i].SignalDetected = false
			}
			current.Devices[id] = dev
		}

		for id, dev := range current.Devices {
			for i := range dev.Inputs {
				s.applyTransition(ctx, &dev.Inputs[i], dev.DeviceNumber)
			}
			current.Devices[id] = dev
		}
	})
}

// applyTransition implements the 4-row transition table of §4.5 step 4.
func (s *Service) applyTransition(ctx context.Context, in *model.Input, deviceNumber int) {
	switch {
	case in.UDP.Status == model.UDPStopped && !in.SignalDetected:
		// no-op

	case in.UDP.Status == model.UDPStopped && in.SignalDetected:
		pid, ok := s.pool.Start(ctx, deviceNumber, in.UDP.MulticastIP, in.UDP.VideoPort, in.UDP.AudioPort)
		if ok {
			in.UDP.Status = model.UDPStreaming
			in.UDP.PipelinePID = pid
		}

	case in.UDP.Status == model.UDPStreaming && in.SignalDetected:
		if !s.pool.IsAlive(in.UDP.PipelinePID) {
			// Pipeline vanished unsupervised: treat as signal loss followed
			// by return, per §4.3's failure mode — restart immediately.
			pid, ok := s.pool.Start(ctx, deviceNumber, in.UDP.MulticastIP, in.UDP.VideoPort, in.UDP.AudioPort)
			if ok {
				in.UDP.PipelinePID = pid
			} else {
				in.UDP.Status = model.UDPStopped
				in.UDP.PipelinePID = 0
			}
		}

	case in.UDP.Status == model.UDPStreaming && !in.SignalDetected:
		s.pool.Stop(in.UDP.PipelinePID)
		in.UDP.Status = model.UDPStopped
		in.UDP.PipelinePID = 0
	}
}
