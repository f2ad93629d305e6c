package drift

import "errors"

var (
	// ErrInsufficientData means the window (or the chosen marker's samples)
	// cannot support an estimate yet. Callers retry on the next tick.
	ErrInsufficientData = errors.New("insufficient observation data")

	// ErrNoValidMarker means no set in the window held a marker inside the id bound
	ErrNoValidMarker = errors.New("no valid marker in window")

	// ErrDegeneratePose means the averaged position landed exactly on (0, 0)
	ErrDegeneratePose = errors.New("degenerate aggregated pose")

	// ErrStaleObservation means the aggregated stamp is older than the staleness threshold
	ErrStaleObservation = errors.New("stale observation")

	// ErrUnknownMarker means the chosen marker has no usable layout entry
	ErrUnknownMarker = errors.New("marker not in layout")

	// ErrTransformUnavailable means the frame lookup did not resolve in time
	ErrTransformUnavailable = errors.New("transform unavailable")

	// ErrSingularTransform means a homogeneous transform could not be inverted
	ErrSingularTransform = errors.New("singular transform")
)
