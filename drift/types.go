package drift

import (
	"math"
	"time"
)

// Vector3 is a position in meters
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a rotation in (x, y, z, w) order
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuaternion returns the zero rotation
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// Pose is a position plus orientation in some frame
type Pose struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// Header carries the frame and capture time of a stamped value
type Header struct {
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frameId"`
}

// PoseStamped is a Pose tagged with its frame and time
type PoseStamped struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

// MarkerObservation is a single detected marker in the sensor frame
type MarkerObservation struct {
	ID   int  `json:"id"`
	Pose Pose `json:"pose"`
}

// ObservationSet is everything the detector saw in one sensor frame.
// Sets are treated as immutable once created.
type ObservationSet struct {
	Header  Header              `json:"header"`
	Markers []MarkerObservation `json:"markers"`
}

// Clone returns a deep copy of the set
func (s ObservationSet) Clone() ObservationSet {
	out := ObservationSet{Header: s.Header}
	if s.Markers != nil {
		out.Markers = make([]MarkerObservation, len(s.Markers))
		copy(out.Markers, s.Markers)
	}
	return out
}

// Find returns the observation for the given marker id
func (s ObservationSet) Find(id int) (MarkerObservation, bool) {
	for _, m := range s.Markers {
		if m.ID == id {
			return m, true
		}
	}
	return MarkerObservation{}, false
}

// KnownMarker is the surveyed map-frame pose of a marker.
// Orientation is stored as roll/pitch/yaw in degrees, as in the layout file.
type KnownMarker struct {
	ID       int     `json:"id"`
	Position Vector3 `json:"position"`
	Roll     float64 `json:"roll"`
	Pitch    float64 `json:"pitch"`
	Yaw      float64 `json:"yaw"`
}

// Pose returns the marker pose with its orientation encoded as a quaternion
func (k KnownMarker) Pose() Pose {
	return Pose{
		Position:    k.Position,
		Orientation: QuaternionFromEuler(deg2rad(k.Roll), deg2rad(k.Pitch), deg2rad(k.Yaw)),
	}
}

// MarkerLayout maps marker id to its known map-frame pose
type MarkerLayout map[int]KnownMarker

// Lookup returns the known pose for a marker id
func (l MarkerLayout) Lookup(id int) (KnownMarker, bool) {
	k, ok := l[id]
	return k, ok
}

// AggregatedPose is the outlier-trimmed representative observation of one marker
type AggregatedPose struct {
	MarkerID int         `json:"markerId"`
	Pose     PoseStamped `json:"pose"`
	Samples  int         `json:"samples"`
}

// CandidateEstimate is a planar map->odom correction candidate (yaw in radians)
type CandidateEstimate struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"`
}

// YawDegrees returns the yaw in degrees
func (c CandidateEstimate) YawDegrees() float64 {
	return rad2deg(c.Yaw)
}

// Transform is a rigid transform as translation plus rotation
type Transform struct {
	Translation Vector3    `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
}

// TransformStamped is a transform from Header.FrameID (parent) to ChildFrameID
type TransformStamped struct {
	ID           string    `json:"id,omitempty"`
	Header       Header    `json:"header"`
	ChildFrameID string    `json:"childFrameId"`
	Transform    Transform `json:"transform"`
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180.0
}

func rad2deg(r float64) float64 {
	return r * 180.0 / math.Pi
}
