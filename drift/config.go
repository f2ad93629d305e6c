package drift

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the full configuration file
type Config struct {
	MQTT             MQTTConfig              `yaml:"mqtt" json:"mqtt"`
	Frames           FrameConfig             `yaml:"frames" json:"frames"`
	Layout           string                  `yaml:"layout" json:"layout"`             // Path to the marker layout (world) JSON
	History          string                  `yaml:"history,omitempty" json:"history"` // Optional SQLite file for published corrections
	Localization     LocalizationConfig      `yaml:"localization" json:"localization"`
	StaticTransforms []StaticTransformConfig `yaml:"staticTransforms,omitempty" json:"staticTransforms,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker         string `yaml:"broker" json:"broker"`
	PublishPrefix  string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID       string `yaml:"clientId" json:"clientId"`
	Username       string `yaml:"username,omitempty" json:"username,omitempty"`
	Password       string `yaml:"password,omitempty" json:"-"`
	MarkerTopic    string `yaml:"markerTopic" json:"markerTopic"`
	TransformTopic string `yaml:"transformTopic,omitempty" json:"transformTopic,omitempty"`
}

// FrameConfig names the reference frames involved in a correction
type FrameConfig struct {
	Map    string `yaml:"map" json:"map"`
	Odom   string `yaml:"odom" json:"odom"`
	Sensor string `yaml:"sensor" json:"sensor"`
}

// LocalizationConfig holds the estimation parameters
type LocalizationConfig struct {
	WindowSize           int      `yaml:"windowSize" json:"windowSize"`       // Ingestion buffer capacity
	AggregateSize        int      `yaml:"aggregateSize" json:"aggregateSize"` // Sets consumed per estimate
	SmoothingSize        int      `yaml:"smoothingSize" json:"smoothingSize"`
	RateHz               float64  `yaml:"rateHz" json:"rateHz"`
	StaleAfter           Duration `yaml:"staleAfter" json:"staleAfter"`
	TransformTimeout     Duration `yaml:"transformTimeout" json:"transformTimeout"`
	TransformCache       Duration `yaml:"transformCache" json:"transformCache"`
	TransformTolerance   Duration `yaml:"transformTolerance" json:"transformTolerance"`
	TranslationThreshold *float64 `yaml:"translationThreshold,omitempty" json:"translationThreshold,omitempty"` // unset means default, 0 is allowed
	YawThresholdDeg      *float64 `yaml:"yawThresholdDeg,omitempty" json:"yawThresholdDeg,omitempty"`
	MaxMarkerID          *int     `yaml:"maxMarkerId,omitempty" json:"maxMarkerId,omitempty"`
	CircularYaw          bool     `yaml:"circularYaw" json:"circularYaw"`
	WarnInterval         Duration `yaml:"warnInterval" json:"warnInterval"`
}

// StaticTransformConfig is a fixed parent->child transform, rotation in degrees
type StaticTransformConfig struct {
	Parent      string     `yaml:"parent" json:"parent"`
	Child       string     `yaml:"child" json:"child"`
	Translation [3]float64 `yaml:"translation" json:"translation"`
	Rotation    [3]float64 `yaml:"rotation" json:"rotation"` // roll, pitch, yaw
}

// Stamped converts the config entry into a TransformStamped
func (s StaticTransformConfig) Stamped() TransformStamped {
	return TransformStamped{
		Header:       Header{FrameID: s.Parent},
		ChildFrameID: s.Child,
		Transform: Transform{
			Translation: Vector3{X: s.Translation[0], Y: s.Translation[1], Z: s.Translation[2]},
			Rotation:    QuaternionFromEuler(deg2rad(s.Rotation[0]), deg2rad(s.Rotation[1]), deg2rad(s.Rotation[2])),
		},
	}
}

// Duration is a time.Duration written as a string ("2s", "500ms") in YAML
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MarshalText writes the duration as a string for JSON output
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Defaults for the localization parameters
const (
	DefaultWindowSize           = 6
	DefaultAggregateSize        = 6
	DefaultSmoothingSize        = 6
	DefaultRateHz               = 10.0
	DefaultStaleAfter           = 2 * time.Second
	DefaultTransformTimeout     = 1 * time.Second
	DefaultTransformCache       = 10 * time.Second
	DefaultTransformTolerance   = 200 * time.Millisecond
	DefaultTranslationThreshold = 0.1
	DefaultYawThresholdDeg      = 5.0
	DefaultMaxMarkerID          = 15
	DefaultWarnInterval         = 5 * time.Second

	DefaultMapFrame      = "map"
	DefaultOdomFrame     = "cf1/odom"
	DefaultSensorFrame   = "cf1/camera_link"
	DefaultMarkerTopic   = "aruco/markers"
	DefaultPublishPrefix = "tudodrift"
)

// ApplyDefaults fills every unset field with its default
func (c *Config) ApplyDefaults() {
	if c.Frames.Map == "" {
		c.Frames.Map = DefaultMapFrame
	}
	if c.Frames.Odom == "" {
		c.Frames.Odom = DefaultOdomFrame
	}
	if c.Frames.Sensor == "" {
		c.Frames.Sensor = DefaultSensorFrame
	}
	if c.MQTT.MarkerTopic == "" {
		c.MQTT.MarkerTopic = DefaultMarkerTopic
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = DefaultPublishPrefix
	}

	l := &c.Localization
	if l.WindowSize == 0 {
		l.WindowSize = DefaultWindowSize
	}
	if l.AggregateSize == 0 {
		l.AggregateSize = DefaultAggregateSize
	}
	if l.SmoothingSize == 0 {
		l.SmoothingSize = DefaultSmoothingSize
	}
	if l.RateHz == 0 {
		l.RateHz = DefaultRateHz
	}
	if l.StaleAfter == 0 {
		l.StaleAfter = Duration(DefaultStaleAfter)
	}
	if l.TransformTimeout == 0 {
		l.TransformTimeout = Duration(DefaultTransformTimeout)
	}
	if l.TransformCache == 0 {
		l.TransformCache = Duration(DefaultTransformCache)
	}
	if l.TransformTolerance == 0 {
		l.TransformTolerance = Duration(DefaultTransformTolerance)
	}
	if l.TranslationThreshold == nil {
		v := DefaultTranslationThreshold
		l.TranslationThreshold = &v
	}
	if l.YawThresholdDeg == nil {
		v := DefaultYawThresholdDeg
		l.YawThresholdDeg = &v
	}
	if l.MaxMarkerID == nil {
		id := DefaultMaxMarkerID
		l.MaxMarkerID = &id
	}
	if l.WarnInterval == 0 {
		l.WarnInterval = Duration(DefaultWarnInterval)
	}
}

// MarkerIDBound returns the inclusive marker id bound
func (l LocalizationConfig) MarkerIDBound() int {
	if l.MaxMarkerID == nil {
		return DefaultMaxMarkerID
	}
	return *l.MaxMarkerID
}

// TranslationGate returns the translation step (meters) that triggers a publish
func (l LocalizationConfig) TranslationGate() float64 {
	if l.TranslationThreshold == nil {
		return DefaultTranslationThreshold
	}
	return *l.TranslationThreshold
}

// YawGateDeg returns the yaw step (degrees) that triggers a publish
func (l LocalizationConfig) YawGateDeg() float64 {
	if l.YawThresholdDeg == nil {
		return DefaultYawThresholdDeg
	}
	return *l.YawThresholdDeg
}

// TickInterval returns the period of the processing loop
func (l LocalizationConfig) TickInterval() time.Duration {
	if l.RateHz <= 0 {
		return time.Duration(float64(time.Second) / DefaultRateHz)
	}
	return time.Duration(float64(time.Second) / l.RateHz)
}

// Validate checks the localization parameters after defaults were applied
func (l LocalizationConfig) Validate() error {
	if l.AggregateSize < 3 {
		return fmt.Errorf("localization.aggregateSize must be at least 3, got %d", l.AggregateSize)
	}
	if l.WindowSize < l.AggregateSize {
		return fmt.Errorf("localization.windowSize (%d) must be >= aggregateSize (%d)", l.WindowSize, l.AggregateSize)
	}
	if l.SmoothingSize < 1 {
		return fmt.Errorf("localization.smoothingSize must be positive, got %d", l.SmoothingSize)
	}
	if l.RateHz < 0 {
		return fmt.Errorf("localization.rateHz must be positive, got %g", l.RateHz)
	}
	if l.TranslationGate() < 0 || l.YawGateDeg() < 0 {
		return fmt.Errorf("localization thresholds must not be negative")
	}
	if l.MarkerIDBound() < 0 {
		return fmt.Errorf("localization.maxMarkerId must not be negative")
	}
	return nil
}
