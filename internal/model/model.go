// Package model defines the documents Sentinel persists to its State
// Registry and the pure functions that derive values from them: the
// deterministic multicast/port assignment formula and the system_status
// decision cascade. Nothing in this package performs I/O.
package model

import "fmt"

// IntentState is the user's declared desired state.
type IntentState string

const (
	IntentDisabled    IntentState = "DISABLED"
	IntentAutoStream  IntentState = "AUTO_STREAM"
)

// UDPStatus is the observed liveness of an input's multicast fan-out.
type UDPStatus string

const (
	UDPStopped   UDPStatus = "stopped"
	UDPStreaming UDPStatus = "streaming"
)

// Configuration names the device, input, destination, and preset the user
// has selected. A zero Configuration has no fields present.
type Configuration struct {
	SelectedDeviceID      int    `json:"selected_device_id"`
	SelectedInputID       string `json:"selected_input_id,omitempty"`
	SelectedDestinationID string `json:"selected_destination_id,omitempty"`
	SelectedPresetID      string `json:"selected_preset_id,omitempty"`
}

// Complete reports whether the three string configuration fields (input,
// destination, preset) are non-empty, as required by intent.json's
// invariant when Intent == AUTO_STREAM. SelectedDeviceID is an int and is
// not checked.
func (c Configuration) Complete() bool {
	return c.SelectedInputID != "" && c.SelectedDestinationID != "" && c.SelectedPresetID != ""
}

// MissingField returns the name of the first required field Complete found
// absent, or "" if the configuration is complete. Used to make the
// AUTO_STREAM diagnostic in DeriveSystemStatus name the specific gap
// rather than a generic "incomplete" message (§7, scenario S6).
func (c Configuration) MissingField() string {
	switch {
	case c.SelectedInputID == "":
		return "selected_input_id"
	case c.SelectedDestinationID == "":
		return "selected_destination_id"
	case c.SelectedPresetID == "":
		return "selected_preset_id"
	default:
		return ""
	}
}

// Intent is the document at intent.json.
type Intent struct {
	Intent        IntentState   `json:"intent"`
	Configuration Configuration `json:"configuration"`
}

// DefaultIntent is the document contents assumed when intent.json does not
// yet exist.
func DefaultIntent() Intent {
	return Intent{Intent: IntentDisabled}
}

// UDP is the per-input multicast fan-out assignment and liveness record.
type UDP struct {
	MulticastIP string    `json:"multicast_ip"`
	VideoPort   int       `json:"video_port"`
	AudioPort   int       `json:"audio_port"`
	Status      UDPStatus `json:"status"`
	PipelinePID int       `json:"pipeline_pid,omitempty"`
}

// Input is one physical port on a capture device.
type Input struct {
	ID             string `json:"id"`
	Port           string `json:"port"`
	SignalDetected bool   `json:"signal_detected"`
	Format         string `json:"format,omitempty"`
	UDP            UDP    `json:"udp"`
}

// Device is one capture card and its ordered input ports.
type Device struct {
	Name         string  `json:"name"`
	DeviceNumber int     `json:"device_number"`
	Inputs       []Input `json:"inputs"`
}

// DeviceRegistry is the document at device_registry.json.
type DeviceRegistry struct {
	Devices map[string]Device `json:"devices"`
}

// DefaultDeviceRegistry is the document contents assumed when
// device_registry.json does not yet exist.
func DefaultDeviceRegistry() DeviceRegistry {
	return DeviceRegistry{Devices: map[string]Device{}}
}

// DeviceID derives the stable document key for a device index, e.g.
// "decklink_0".
func DeviceID(deviceNumber int) string {
	return fmt.Sprintf("decklink_%d", deviceNumber)
}

// Telemetry is the document at stream_stats.json.
type Telemetry struct {
	FPS             float64 `json:"fps"`
	BitrateKbps     int     `json:"bitrate"`
	FramesProcessed int     `json:"frames_processed"`
	FramesDropped   int     `json:"frames_dropped"`
	StreamDuration  int     `json:"stream_duration"`
	LastUpdate      float64 `json:"last_update"`
}

// DefaultTelemetry is the idle (zeroed) telemetry snapshot, written whenever
// no encoder is active.
func DefaultTelemetry() Telemetry { return Telemetry{} }

// AssignUDP computes the deterministic multicast address and port pair for
// input index k (0-based, within device order) on a device with the given
// device number. Per spec: multicast_ip = 239.0.0.(device_number+1);
// video_port = 5000 + 10*device_number + 2*k; audio_port = video_port + 1.
func AssignUDP(deviceNumber, inputIndex int) UDP {
	videoPort := 5000 + 10*deviceNumber + 2*inputIndex
	return UDP{
		MulticastIP: fmt.Sprintf("239.0.0.%d", deviceNumber+1),
		VideoPort:   videoPort,
		AudioPort:   videoPort + 1,
		Status:      UDPStopped,
	}
}

// SystemStatus is the single-word diagnostic string surfaced to operators.
type SystemStatus string

const (
	StatusStreamingLive  SystemStatus = "Streaming Live"
	StatusReadyToStream  SystemStatus = "Ready to Stream"
	StatusSignalDetected SystemStatus = "Signal Detected"
	StatusNoSignal       SystemStatus = "No Signal"
	// StatusAwaitingSignal is the AUTO_STREAM equivalent of StatusNoSignal:
	// configuration is complete and no resolution failure is outstanding,
	// but the selected input hasn't reached udp.status=streaming yet.
	StatusAwaitingSignal SystemStatus = "Waiting for Signal"
)

// DeriveSystemStatus implements the decision cascade from §6/§7: for
// AUTO_STREAM, an incomplete configuration or an outstanding Uplink
// Supervisor resolution failure (diagnostic, set by uplink.Service.reconcile
// and cleared on success) produces a diagnostic string naming the root
// cause, ahead of the literal "Streaming Live" the distilled spec assumes
// already-resolved AUTO_STREAM intent always means (scenario S6). For any
// other intent, the inventory's most "alive" observed input state wins.
func DeriveSystemStatus(intent Intent, inv DeviceRegistry, diagnostic string) SystemStatus {
	if intent.Intent == IntentAutoStream {
		if missing := intent.Configuration.MissingField(); missing != "" {
			return SystemStatus(fmt.Sprintf("Error: missing %s", missing))
		}
		if diagnostic != "" {
			return SystemStatus(diagnostic)
		}
		if in, ok := selectedInput(inv, intent.Configuration.SelectedInputID); ok && in.UDP.Status == UDPStreaming {
			return StatusStreamingLive
		}
		return StatusAwaitingSignal
	}

	anyStreaming := false
	anySignal := false
	for _, d := range inv.Devices {
		for _, i := range d.Inputs {
			if i.UDP.Status == UDPStreaming {
				anyStreaming = true
			}
			if i.SignalDetected {
				anySignal = true
			}
		}
	}

	switch {
	case anyStreaming:
		return StatusReadyToStream
	case anySignal:
		return StatusSignalDetected
	default:
		return StatusNoSignal
	}
}

// selectedInput looks up the input a Configuration names within an
// inventory, regardless of which device it belongs to.
func selectedInput(inv DeviceRegistry, inputID string) (Input, bool) {
	for _, d := range inv.Devices {
		for _, in := range d.Inputs {
			if in.ID == inputID {
				return in, true
			}
		}
	}
	return Input{}, false
}

// AggregatedState is the union spec.md §6 specifies for the external
// "read aggregated state" command: intent, inventory, telemetry, and the
// derived system_status.
type AggregatedState struct {
	Intent       Intent         `json:"intent"`
	Inventory    DeviceRegistry `json:"inventory"`
	Telemetry    Telemetry      `json:"telemetry"`
	SystemStatus SystemStatus   `json:"system_status"`
}
