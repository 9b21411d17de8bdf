// Package catalog loads the static destinations and encoding-presets
// documents the Uplink Supervisor resolves a binding's destination and
// preset against. Both files are external collaborators authored by an
// operator or a provisioning tool; this package only parses and resolves
// them. Read fresh on every reconciliation tick, per §6 ("Read once per
// reconciliation tick") — neither document is cached across ticks.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Stream is one ingest key within a platform.
type Stream struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Platform is one remote ingest platform (e.g. "youtube", "facebook").
type Platform struct {
	Name    string   `json:"name"`
	RTMPURL string   `json:"rtmp_url"`
	Streams []Stream `json:"streams"`
}

// Destinations is the parsed static destinations file.
type Destinations struct {
	Destinations map[string]Platform `json:"destinations"`
}

// Preset is a named encoder target.
type Preset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FPS         int    `json:"fps"`
	BitrateKbps int    `json:"bitrate"`
}

// QualityCategory groups presets of similar tier (e.g. "hd", "4k").
type QualityCategory struct {
	Variants []Preset `json:"variants"`
}

// Presets is the parsed static encoding-presets file.
type Presets struct {
	Presets map[string]QualityCategory `json:"presets"`
}

// LoadDestinations reads and parses the static destinations file at path.
func LoadDestinations(path string) (*Destinations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read destinations file: %w", err)
	}
	var d Destinations
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse destinations file: %w", err)
	}
	return &d, nil
}

// LoadPresets reads and parses the static encoding-presets file at path.
func LoadPresets(path string) (*Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}
	var p Presets
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse presets file: %w", err)
	}
	return &p, nil
}

// splitDestinationID splits "platform:stream" into its two parts.
func splitDestinationID(destinationID string) (platformID, streamID string, ok bool) {
	for i := 0; i < len(destinationID); i++ {
		if destinationID[i] == ':' {
			return destinationID[:i], destinationID[i+1:], true
		}
	}
	return "", "", false
}

// ResolveRTMPURL resolves a "<platform>:<stream>" destination id to the
// fully composed ingest URL: "<platform.rtmp_url>/<stream.key>". Per §6 the
// trailing " live=1" is a pipeline-construction detail appended by the
// encoder pool, not part of the resolved URL itself.
func (d *Destinations) ResolveRTMPURL(destinationID string) (string, error) {
	platformID, streamID, ok := splitDestinationID(destinationID)
	if !ok {
		return "", fmt.Errorf("malformed destination id %q: expected \"platform:stream\"", destinationID)
	}

	platform, ok := d.Destinations[platformID]
	if !ok {
		return "", fmt.Errorf("unknown destination platform %q", platformID)
	}

	for _, s := range platform.Streams {
		if s.ID == streamID {
			return platform.RTMPURL + "/" + s.Key, nil
		}
	}
	return "", fmt.Errorf("unknown stream %q for platform %q", streamID, platformID)
}

// ResolvePreset finds a preset by id across all quality categories.
func (p *Presets) ResolvePreset(presetID string) (Preset, error) {
	for _, category := range p.Presets {
		for _, variant := range category.Variants {
			if variant.ID == presetID {
				return variant, nil
			}
		}
	}
	return Preset{}, fmt.Errorf("unknown preset %q", presetID)
}
