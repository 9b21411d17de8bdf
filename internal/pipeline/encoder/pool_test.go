package encoder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sentinel-av/sentinel/internal/catalog"
	"github.com/sentinel-av/sentinel/internal/model"
)

func scriptBuilder(script string) CommandBuilder {
	return func(string, int, int, string, catalog.Preset) (string, []string) {
		return "/bin/sh", []string{"-c", script}
	}
}

var testPreset = catalog.Preset{ID: "hd_high", Width: 1920, Height: 1080, FPS: 60, BitrateKbps: 6000}

func TestStartAndStopByKey(t *testing.T) {
	pool := NewPool("", nil, WithCommandBuilder(scriptBuilder("sleep 5")))

	pid, ok := pool.Start(context.Background(), "input_0:youtube:main", "239.0.0.1", 5000, 5001, "rtmp://example/live", testPreset)
	if !ok || pid == 0 {
		t.Fatalf("Start() = (%d, %v), want success", pid, ok)
	}

	if got, ok := pool.PidForKey("input_0:youtube:main"); !ok || got != pid {
		t.Errorf("PidForKey() = (%d, %v), want (%d, true)", got, ok, pid)
	}

	// Starting the same key again is a no-op returning the same PID.
	pid2, ok2 := pool.Start(context.Background(), "input_0:youtube:main", "239.0.0.1", 5000, 5001, "rtmp://example/live", testPreset)
	if !ok2 || pid2 != pid {
		t.Errorf("second Start() = (%d, %v), want (%d, true)", pid2, ok2, pid)
	}

	pool.Stop(pid)
	if pool.IsAlive(pid) {
		t.Error("expected pipeline stopped")
	}
	if _, ok := pool.PidForKey("input_0:youtube:main"); ok {
		t.Error("expected key forgotten after stop")
	}
}

func TestIsAliveCleansUpDeadHandle(t *testing.T) {
	pool := NewPool("", nil, WithCommandBuilder(scriptBuilder("exit 0")))

	pid, ok := pool.Start(context.Background(), "k", "239.0.0.1", 5000, 5001, "rtmp://example/live", testPreset)
	if !ok {
		t.Fatalf("Start() failed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !pool.IsAlive(pid) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if pool.IsAlive(pid) {
		t.Error("expected dead pipeline to be detected")
	}
	if _, ok := pool.PidForKey("k"); ok {
		t.Error("expected key forgotten once dead")
	}
}

func TestTelemetrySinkReceivesRateLimitedSnapshots(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var snapshots []model.Telemetry

	pool := NewPool(dir, nil,
		WithCommandBuilder(scriptBuilder(fmt.Sprintf(
			`for i in 1 2 3 4 5; do echo "rendered: $((i*10)), dropped: 0, fps: 29.9" >&2; sleep 0.3; done; sleep 2`,
		))),
		WithTelemetrySink(func(snap model.Telemetry) {
			mu.Lock()
			snapshots = append(snapshots, snap)
			mu.Unlock()
		}),
	)

	pid, ok := pool.Start(context.Background(), "k", "239.0.0.1", 5000, 5001, "rtmp://example/live", testPreset)
	if !ok {
		t.Fatalf("Start() failed")
	}
	defer pool.Stop(pid)

	time.Sleep(1800 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(snapshots) == 0 {
		t.Fatal("expected at least one telemetry snapshot")
	}
	if snapshots[0].FPS == 0 {
		t.Error("expected non-zero FPS parsed from stderr")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StateDead, "dead"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
