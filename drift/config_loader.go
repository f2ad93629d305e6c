package drift

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the service configuration from a YAML file and applies defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if config.Layout == "" {
		return nil, fmt.Errorf("layout is required")
	}
	// Relative layout and history paths are relative to the config file
	dir := filepath.Dir(path)
	if !filepath.IsAbs(config.Layout) {
		config.Layout = filepath.Join(dir, config.Layout)
	}
	if config.History != "" && !filepath.IsAbs(config.History) {
		config.History = filepath.Join(dir, config.History)
	}

	for i, st := range config.StaticTransforms {
		if st.Parent == "" || st.Child == "" {
			return nil, fmt.Errorf("staticTransforms[%d] needs parent and child", i)
		}
	}

	config.ApplyDefaults()
	if err := config.Localization.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// layoutFile is the on-disk marker layout ("world") format
type layoutFile struct {
	Markers []json.RawMessage `json:"markers"`
}

type layoutEntry struct {
	ID   *int `json:"id"`
	Pose *struct {
		Position    []float64 `json:"position"`
		Orientation []float64 `json:"orientation"` // roll, pitch, yaw in degrees
	} `json:"pose"`
}

// LoadMarkerLayout reads the marker layout JSON. Malformed entries are
// logged and skipped so the affected ids are simply unusable; an unreadable
// or unparseable file is an error.
func LoadMarkerLayout(path string) (MarkerLayout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("layout file not found: %s", path)
		}
		return nil, fmt.Errorf("reading layout file: %w", err)
	}
	return ParseMarkerLayout(data)
}

// ParseMarkerLayout parses marker layout JSON
func ParseMarkerLayout(data []byte) (MarkerLayout, error) {
	var file layoutFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing layout JSON: %w", err)
	}

	layout := make(MarkerLayout, len(file.Markers))
	for i, raw := range file.Markers {
		km, err := parseLayoutEntry(raw)
		if err != nil {
			log.Printf("[LAYOUT] Skipping marker entry %d: %v", i, err)
			continue
		}
		if _, dup := layout[km.ID]; dup {
			log.Printf("[LAYOUT] Duplicate marker id %d at entry %d, keeping the first", km.ID, i)
			continue
		}
		layout[km.ID] = km
	}
	return layout, nil
}

func parseLayoutEntry(raw json.RawMessage) (KnownMarker, error) {
	var e layoutEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return KnownMarker{}, err
	}
	if e.ID == nil {
		return KnownMarker{}, fmt.Errorf("missing id")
	}
	if e.Pose == nil {
		return KnownMarker{}, fmt.Errorf("marker %d: missing pose", *e.ID)
	}
	if len(e.Pose.Position) != 3 {
		return KnownMarker{}, fmt.Errorf("marker %d: position needs 3 values, got %d", *e.ID, len(e.Pose.Position))
	}
	if len(e.Pose.Orientation) != 3 {
		return KnownMarker{}, fmt.Errorf("marker %d: orientation needs roll, pitch, yaw, got %d values", *e.ID, len(e.Pose.Orientation))
	}

	return KnownMarker{
		ID:       *e.ID,
		Position: Vector3{X: e.Pose.Position[0], Y: e.Pose.Position[1], Z: e.Pose.Position[2]},
		Roll:     e.Pose.Orientation[0],
		Pitch:    e.Pose.Orientation[1],
		Yaw:      e.Pose.Orientation[2],
	}, nil
}
