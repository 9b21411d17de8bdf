package input

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentinel-av/sentinel/internal/model"
	"github.com/sentinel-av/sentinel/internal/pipeline/multicast"
	"github.com/sentinel-av/sentinel/internal/probe"
	"github.com/sentinel-av/sentinel/internal/registry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(t.TempDir(), discardLogger())
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

func writeFakeProbe(t *testing.T, json string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.sh")
	script := "#!/bin/sh\necho '" + json + "'\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// S1: cold start, no hardware.
func TestReconcileColdStartNoHardware(t *testing.T) {
	reg := newTestRegistry(t)
	probePath := writeFakeProbe(t, `[]`)
	inv := probe.NewInvoker(probePath, discardLogger())
	pool := multicast.NewPool("/bin/sh", "", discardLogger())

	svc := NewService(reg, inv, pool, discardLogger())
	svc.reconcile(context.Background())

	var got model.DeviceRegistry
	reg.Read(registry.DocInventory, &got)
	if len(got.Devices) != 0 {
		t.Errorf("Devices = %v, want empty", got.Devices)
	}
	if status := model.DeriveSystemStatus(model.DefaultIntent(), got, ""); status != model.StatusNoSignal {
		t.Errorf("system_status = %q, want %q", status, model.StatusNoSignal)
	}
}

// S2: signal appears then disappears across three probes.
func TestReconcileSignalAppearsThenDisappears(t *testing.T) {
	reg := newTestRegistry(t)
	pool := multicast.NewPool("/bin/sh", "", discardLogger(), multicast.WithCommandBuilder(
		func(int, string, int, int) (string, []string) { return "/bin/sh", []string{"-c", "sleep 5"} },
	))

	noSignal := writeFakeProbe(t, `[{"device_number":0,"name":"Card","inputs":[{"id":"input_0","port":"SDI 1","signal_detected":false}]}]`)
	withSignal := writeFakeProbe(t, `[{"device_number":0,"name":"Card","inputs":[{"id":"input_0","port":"SDI 1","signal_detected":true,"format":"1920x1080@60"}]}]`)

	svc := NewService(reg, probe.NewInvoker(noSignal, discardLogger()), pool, discardLogger())
	svc.reconcile(context.Background())

	svc.probe = probe.NewInvoker(withSignal, discardLogger())
	svc.reconcile(context.Background())

	var afterSecond model.DeviceRegistry
	reg.Read(registry.DocInventory, &afterSecond)
	in := afterSecond.Devices["decklink_0"].Inputs[0]
	if in.UDP.Status != model.UDPStreaming {
		t.Fatalf("after signal appears: status = %q, want streaming", in.UDP.Status)
	}
	if in.UDP.MulticastIP != "239.0.0.1" || in.UDP.VideoPort != 5000 || in.UDP.AudioPort != 5001 {
		t.Errorf("udp assignment = %+v, want 239.0.0.1:5000/5001", in.UDP)
	}
	if !pool.IsAlive(in.UDP.PipelinePID) {
		t.Error("expected multicast pipeline running")
	}

	svc.probe = probe.NewInvoker(noSignal, discardLogger())
	svc.reconcile(context.Background())

	var afterThird model.DeviceRegistry
	reg.Read(registry.DocInventory, &afterThird)
	in = afterThird.Devices["decklink_0"].Inputs[0]
	if in.UDP.Status != model.UDPStopped || in.UDP.PipelinePID != 0 {
		t.Errorf("after signal disappears: udp = %+v, want stopped/no pid", in.UDP)
	}
}

func TestResetStaleStateClearsPriorPIDs(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Write(registry.DocInventory, model.DeviceRegistry{
		Devices: map[string]model.Device{
			"decklink_0": {
				DeviceNumber: 0,
				Inputs: []model.Input{
					{ID: "input_0", UDP: model.UDP{Status: model.UDPStreaming, PipelinePID: 12345}},
				},
			},
		},
	})

	pool := multicast.NewPool("/bin/sh", "", discardLogger())
	svc := NewService(reg, probe.NewInvoker("/bin/sh", discardLogger()), pool, discardLogger())
	svc.resetStaleState()

	var got model.DeviceRegistry
	reg.Read(registry.DocInventory, &got)
	in := got.Devices["decklink_0"].Inputs[0]
	if in.UDP.Status != model.UDPStopped || in.UDP.PipelinePID != 0 {
		t.Errorf("udp = %+v, want reset to stopped/no pid", in.UDP)
	}
}

func TestRunStopsAllPipelinesOnShutdown(t *testing.T) {
	reg := newTestRegistry(t)
	pool := multicast.NewPool("/bin/sh", "", discardLogger(), multicast.WithCommandBuilder(
		func(int, string, int, int) (string, []string) { return "/bin/sh", []string{"-c", "sleep 5"} },
	))
	withSignal := writeFakeProbe(t, `[{"device_number":0,"name":"Card","inputs":[{"id":"input_0","port":"SDI 1","signal_detected":true}]}]`)

	svc := NewService(reg, probe.NewInvoker(withSignal, discardLogger()), pool, discardLogger(), WithTickInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if pool.Count() != 0 {
		t.Errorf("Count() = %d after shutdown, want 0", pool.Count())
	}
}
