package drift

import (
	"fmt"
	"math"
	"time"
)

// ComposeCorrection computes the map->odom candidate from a marker's known
// map pose and its observed pose in the odom frame:
//
//	T_map_odom = T_map_marker * inverse(T_odom_marker)
//
// Only the planar translation and yaw are kept; roll and pitch of the
// result are treated as sensor and placement noise.
func ComposeCorrection(known KnownMarker, observedInOdom Pose) (CandidateEstimate, error) {
	mapMarker := HomogeneousMatrix(known.Pose())
	odomMarker := HomogeneousMatrix(observedInOdom)

	markerOdom, err := InvertHomogeneous(odomMarker)
	if err != nil {
		return CandidateEstimate{}, fmt.Errorf("inverting odom->marker for marker %d: %w", known.ID, err)
	}

	mapOdom := ComposeHomogeneous(mapMarker, markerOdom)
	t := TranslationOf(mapOdom)

	// zero the translation column before decomposing the rotation
	mapOdom.Set(0, 3, 0)
	mapOdom.Set(1, 3, 0)
	mapOdom.Set(2, 3, 0)
	_, _, yaw := EulerFromMatrix(mapOdom)

	c := CandidateEstimate{X: t.X, Y: t.Y, Yaw: yaw}
	if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsNaN(c.Yaw) {
		return CandidateEstimate{}, fmt.Errorf("marker %d: %w", known.ID, ErrSingularTransform)
	}
	return c, nil
}

// CheckFreshness rejects stamps older than maxAge relative to now
func CheckFreshness(stamp, now time.Time, maxAge time.Duration) error {
	if age := now.Sub(stamp); age > maxAge {
		return fmt.Errorf("%w: %v old (limit %v)", ErrStaleObservation, age.Round(time.Millisecond), maxAge)
	}
	return nil
}
