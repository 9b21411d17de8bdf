// Package uplink implements the Uplink Supervisor: the level-triggered
// reconciliation loop that reads intent and the device inventory every 1 s,
// resolves a requested (input, destination, preset) binding against the
// static catalog, and starts, restarts, or stops the single encoder child
// that binding owns (§4.6).
package uplink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinel-av/sentinel/internal/catalog"
	"github.com/sentinel-av/sentinel/internal/model"
	"github.com/sentinel-av/sentinel/internal/pipeline/encoder"
	"github.com/sentinel-av/sentinel/internal/registry"
)

// TickInterval is the Uplink Supervisor's reconciliation period.
const TickInterval = 1 * time.Second

// CatalogSource resolves destinations/presets fresh on every tick, per §6
// ("Read once per reconciliation tick").
type CatalogSource interface {
	LoadDestinations() (*catalog.Destinations, error)
	LoadPresets() (*catalog.Presets, error)
}

// FileCatalogSource loads the destinations and presets files from disk on
// every call, matching the no-caching contract.
type FileCatalogSource struct {
	DestinationsPath string
	PresetsPath      string
}

func (f FileCatalogSource) LoadDestinations() (*catalog.Destinations, error) {
	return catalog.LoadDestinations(f.DestinationsPath)
}

func (f FileCatalogSource) LoadPresets() (*catalog.Presets, error) {
	return catalog.LoadPresets(f.PresetsPath)
}

// Service implements supervisor.Service.
type Service struct {
	reg     *registry.Registry
	pool    *encoder.Pool
	catalog CatalogSource
	logger  *slog.Logger
	tick    time.Duration

	// owned is the in-memory "logical key -> PID" map §4.6 specifies as the
	// Uplink Supervisor's only state.
	owned map[string]int
}

// Option configures a Service.
type Option func(*Service)

// WithTickInterval overrides the default 1 s reconciliation period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) { s.tick = d }
}

// NewService builds the Uplink Supervisor.
func NewService(reg *registry.Registry, pool *encoder.Pool, catalogSource CatalogSource, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		reg:     reg,
		pool:    pool,
		catalog: catalogSource,
		logger:  logger,
		tick:    TickInterval,
		owned:   map[string]int{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies this service to the supervisor.
func (s *Service) Name() string { return "uplink-supervisor" }

// Run reconciles every tick until ctx is cancelled, stopping all owned
// encoders before returning.
func (s *Service) Run(ctx context.Context) error {
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

// reconcile implements the per-tick algorithm of §4.6. Resolution failures
// are recorded to registry.DocDiagnostic so DeriveSystemStatus can surface
// the root cause instead of a blind "Streaming Live" for AUTO_STREAM intent
// (§7, scenario S6); the diagnostic is cleared as soon as a binding starts
// or is already running.
func (s *Service) reconcile(ctx context.Context) {
	var intent model.Intent
	s.reg.Read(registry.DocIntent, &intent)

	if intent.Intent == model.IntentDisabled {
		s.stopAllOwned()
		s.setDiagnostic("")
		return
	}

	c := intent.Configuration
	if !c.Complete() {
		// DeriveSystemStatus names the missing field itself from intent.json
		// directly; no diagnostic document needed for this case.
		s.logger.Warn("uplink reconciliation: incomplete configuration for AUTO_STREAM intent")
		return
	}

	var inv model.DeviceRegistry
	s.reg.Read(registry.DocInventory, &inv)

	videoInput, ok := findInput(inv, c.SelectedInputID)
	if !ok || !videoInput.SignalDetected || videoInput.UDP.Status != model.UDPStreaming {
		s.logger.Warn("uplink reconciliation: input not streaming", "input_id", c.SelectedInputID)
		s.setDiagnostic(fmt.Sprintf("Error: Input %s Not Ready", c.SelectedInputID))
		return
	}

	dest, err := s.catalog.LoadDestinations()
	if err != nil {
		s.logger.Error("uplink reconciliation: load destinations", "error", err)
		s.setDiagnostic("Error: Invalid Destination")
		return
	}
	rtmpURL, err := dest.ResolveRTMPURL(c.SelectedDestinationID)
	if err != nil {
		s.logger.Warn("uplink reconciliation: resolve destination", "error", err)
		s.setDiagnostic("Error: Invalid Destination")
		return
	}

	presets, err := s.catalog.LoadPresets()
	if err != nil {
		s.logger.Error("uplink reconciliation: load presets", "error", err)
		s.setDiagnostic("Error: Invalid Config")
		return
	}
	preset, err := presets.ResolvePreset(c.SelectedPresetID)
	if err != nil {
		s.logger.Warn("uplink reconciliation: resolve preset", "error", err)
		s.setDiagnostic("Error: Invalid Config")
		return
	}

	key := fmt.Sprintf("%s:%s", c.SelectedInputID, c.SelectedDestinationID)

	// If any other binding is owned, the user changed destination or
	// input: stop the stale one first (§4.6 step 6).
	for ownedKey, pid := range s.owned {
		if ownedKey != key {
			s.pool.Stop(pid)
			delete(s.owned, ownedKey)
		}
	}

	if pid, isOwned := s.owned[key]; isOwned {
		if s.pool.IsAlive(pid) {
			s.setDiagnostic("")
			return
		}
		delete(s.owned, key)
	}

	pid, started := s.pool.Start(ctx, key, videoInput.UDP.MulticastIP, videoInput.UDP.VideoPort, videoInput.UDP.AudioPort, rtmpURL, preset)
	if started {
		s.owned[key] = pid
		s.setDiagnostic("")
	} else {
		s.logger.Error("uplink reconciliation: encoder failed to start", "key", key)
		s.setDiagnostic("Error: Stream Launch Failed")
	}
}

// setDiagnostic records (or clears, for msg == "") the last resolution
// failure for DeriveSystemStatus to surface. Cleared on every path that
// reaches or keeps a running binding.
func (s *Service) setDiagnostic(msg string) {
	s.reg.Write(registry.DocDiagnostic, msg)
}

func (s *Service) stopAllOwned() {
	if len(s.owned) == 0 {
		return
	}
	for key, pid := range s.owned {
		s.pool.Stop(pid)
		delete(s.owned, key)
	}
	// Telemetry lives only while an encoder runs; reset it the moment the
	// last binding is torn down (§3).
	s.reg.Write(registry.DocTelemetry, model.DefaultTelemetry())
}

func findInput(inv model.DeviceRegistry, inputID string) (model.Input, bool) {
	for _, d := range inv.Devices {
		for _, in := range d.Inputs {
			if in.ID == inputID {
				return in, true
			}
		}
	}
	return model.Input{}, false
}
