package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

const destinationsJSON = `{
  "destinations": {
    "youtube": {
      "name": "YouTube",
      "rtmp_url": "rtmp://a.rtmp.youtube.com/live2",
      "streams": [
        { "id": "main", "name": "Main channel", "key": "abcd-1234-efgh-5678" }
      ]
    }
  }
}`

const presetsJSON = `{
  "presets": {
    "hd": {
      "variants": [
        { "id": "hd_high", "name": "1080p60 high", "width": 1920, "height": 1080, "fps": 60, "bitrate": 6000 }
      ]
    }
  }
}`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestResolveRTMPURL(t *testing.T) {
	path := writeFixture(t, "destinations.json", destinationsJSON)
	d, err := LoadDestinations(path)
	if err != nil {
		t.Fatalf("LoadDestinations: %v", err)
	}

	url, err := d.ResolveRTMPURL("youtube:main")
	if err != nil {
		t.Fatalf("ResolveRTMPURL: %v", err)
	}
	want := "rtmp://a.rtmp.youtube.com/live2/abcd-1234-efgh-5678"
	if url != want {
		t.Errorf("ResolveRTMPURL() = %q, want %q", url, want)
	}
}

func TestResolveRTMPURLErrors(t *testing.T) {
	path := writeFixture(t, "destinations.json", destinationsJSON)
	d, err := LoadDestinations(path)
	if err != nil {
		t.Fatalf("LoadDestinations: %v", err)
	}

	tests := []string{"malformed", "unknown:main", "youtube:unknown"}
	for _, id := range tests {
		if _, err := d.ResolveRTMPURL(id); err == nil {
			t.Errorf("ResolveRTMPURL(%q) expected error, got nil", id)
		}
	}
}

func TestResolvePreset(t *testing.T) {
	path := writeFixture(t, "presets.json", presetsJSON)
	p, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}

	preset, err := p.ResolvePreset("hd_high")
	if err != nil {
		t.Fatalf("ResolvePreset: %v", err)
	}
	if preset.BitrateKbps != 6000 || preset.FPS != 60 {
		t.Errorf("ResolvePreset() = %+v, unexpected values", preset)
	}

	if _, err := p.ResolvePreset("nonexistent"); err == nil {
		t.Error("ResolvePreset(nonexistent) expected error, got nil")
	}
}
