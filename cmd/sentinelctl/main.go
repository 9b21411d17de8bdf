// Command sentinelctl is the local administrative CLI for a Sentinel
// appliance. It reads and writes the same State Registry documents that a
// REST handler would (see §2, §6) — it is not itself a server, and talking
// to a remote appliance requires SSH or whatever transport operations uses
// to reach the box.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/sentinel-av/sentinel/internal/config"
	"github.com/sentinel-av/sentinel/internal/model"
	"github.com/sentinel-av/sentinel/internal/registry"
)

const exitError = 1

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

// run is the entry point, extracted for testability.
func run(args []string) error {
	if len(args) == 0 {
		return runHelp()
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "help", "--help", "-h":
		return runHelp()
	case "status":
		return runStatus(commandArgs)
	case "set-intent":
		return runSetIntent(commandArgs)
	case "set-configuration":
		return runSetConfiguration(commandArgs)
	default:
		return fmt.Errorf("unknown command: %s (run 'sentinelctl help' for usage)", command)
	}
}

func runHelp() error {
	fmt.Printf(`sentinelctl - Sentinel appliance administrative CLI

USAGE:
    sentinelctl [COMMAND] [OPTIONS]

COMMANDS:
    help                Show this help message
    status              Print aggregated state (intent, inventory, telemetry, system_status)
    set-intent          Set the user's declared intent
    set-configuration   Set the selected device/input/destination/preset

OPTIONS:
    --config=PATH       Path to configuration file (default: %s)

EXAMPLES:
    # Human-readable status
    sentinelctl status

    # Status as JSON (for scripting)
    sentinelctl status --json

    # Disable streaming
    sentinelctl set-intent disabled

    # Enable AUTO_STREAM (requires a complete configuration already set)
    sentinelctl set-intent auto_stream

    # Select input_0 on device 0, stream to the youtube/main destination at hd_high
    sentinelctl set-configuration --device=0 --input=input_0 --destination=youtube:main --preset=hd_high
`, config.ConfigFilePath)
	return nil
}

func runStatus(args []string) error {
	cfgPath := flagValue(args, "--config", config.ConfigFilePath)
	asJSON := hasFlag(args, "--json")

	reg, err := openRegistry(cfgPath)
	if err != nil {
		return err
	}

	intent := model.DefaultIntent()
	reg.Read(registry.DocIntent, &intent)

	inv := model.DefaultDeviceRegistry()
	reg.Read(registry.DocInventory, &inv)

	telemetry := model.DefaultTelemetry()
	reg.Read(registry.DocTelemetry, &telemetry)

	var diagnostic string
	reg.Read(registry.DocDiagnostic, &diagnostic)

	state := model.AggregatedState{
		Intent:       intent,
		Inventory:    inv,
		Telemetry:    telemetry,
		SystemStatus: model.DeriveSystemStatus(intent, inv, diagnostic),
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}

	printStatus(state)
	return nil
}

func printStatus(state model.AggregatedState) {
	fmt.Printf("System status: %s\n", state.SystemStatus)
	fmt.Printf("Intent:        %s\n", state.Intent.Intent)
	if c := state.Intent.Configuration; c != (model.Configuration{}) {
		fmt.Printf("  device:      %d\n", c.SelectedDeviceID)
		fmt.Printf("  input:       %s\n", c.SelectedInputID)
		fmt.Printf("  destination: %s\n", c.SelectedDestinationID)
		fmt.Printf("  preset:      %s\n", c.SelectedPresetID)
	}

	fmt.Println()
	fmt.Println("Devices:")
	if len(state.Inventory.Devices) == 0 {
		fmt.Println("  (none detected)")
	}
	for id, dev := range state.Inventory.Devices {
		fmt.Printf("  %s (%s)\n", id, dev.Name)
		for _, in := range dev.Inputs {
			fmt.Printf("    %-10s signal=%-5v format=%-6s udp=%s %s:%d/%d pid=%d\n",
				in.ID, in.SignalDetected, in.Format, in.UDP.Status,
				in.UDP.MulticastIP, in.UDP.VideoPort, in.UDP.AudioPort, in.UDP.PipelinePID)
		}
	}

	fmt.Println()
	fmt.Printf("Telemetry: fps=%.1f bitrate_kbps=%d frames=%d dropped=%d duration=%ds\n",
		state.Telemetry.FPS, state.Telemetry.BitrateKbps, state.Telemetry.FramesProcessed,
		state.Telemetry.FramesDropped, state.Telemetry.StreamDuration)
}

func runSetIntent(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "--") {
		return fmt.Errorf("usage: sentinelctl set-intent <disabled|auto_stream> [--config=PATH]")
	}
	cfgPath := flagValue(args, "--config", config.ConfigFilePath)

	var intentState model.IntentState
	switch strings.ToLower(args[0]) {
	case "disabled":
		intentState = model.IntentDisabled
	case "auto_stream", "auto-stream":
		intentState = model.IntentAutoStream
	default:
		return fmt.Errorf("invalid intent %q (want disabled|auto_stream)", args[0])
	}

	reg, err := openRegistry(cfgPath)
	if err != nil {
		return err
	}

	var writeErr error
	current := model.DefaultIntent()
	reg.Update(registry.DocIntent, &current, func() {
		if intentState == model.IntentAutoStream && !current.Configuration.Complete() {
			writeErr = fmt.Errorf("cannot set intent to AUTO_STREAM: configuration is incomplete, run set-configuration first")
			return
		}
		current.Intent = intentState
	})
	if writeErr != nil {
		return writeErr
	}

	fmt.Printf("Intent set to %s\n", intentState)
	return nil
}

func runSetConfiguration(args []string) error {
	cfgPath := flagValue(args, "--config", config.ConfigFilePath)
	deviceStr := flagValue(args, "--device", "")
	inputID := flagValue(args, "--input", "")
	destinationID := flagValue(args, "--destination", "")
	presetID := flagValue(args, "--preset", "")

	if deviceStr == "" || inputID == "" || destinationID == "" || presetID == "" {
		return fmt.Errorf("usage: sentinelctl set-configuration --device=N --input=ID --destination=ID --preset=ID")
	}

	deviceNumber, err := strconv.Atoi(deviceStr)
	if err != nil {
		return fmt.Errorf("invalid --device %q: %w", deviceStr, err)
	}

	reg, err := openRegistry(cfgPath)
	if err != nil {
		return err
	}

	current := model.DefaultIntent()
	reg.Update(registry.DocIntent, &current, func() {
		current.Configuration = model.Configuration{
			SelectedDeviceID:      deviceNumber,
			SelectedInputID:       inputID,
			SelectedDestinationID: destinationID,
			SelectedPresetID:      presetID,
		}
	})

	fmt.Println("Configuration updated")
	return nil
}

func openRegistry(cfgPath string) (*registry.Registry, error) {
	cfg, err := loadConfiguration(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	reg, err := registry.New(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open state registry: %w", err)
	}
	return reg, nil
}

func loadConfiguration(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

// flagValue extracts the value of a "--name=value" flag from args, or
// returns fallback if absent.
func flagValue(args []string, name, fallback string) string {
	prefix := name + "="
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return fallback
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}
