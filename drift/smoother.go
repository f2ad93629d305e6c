package drift

import "gonum.org/v1/gonum/stat"

// TemporalSmoother keeps the last few correction candidates and averages them.
// It is never cleared; a publish only resets the gate's cycle counter.
type TemporalSmoother struct {
	samples  []CandidateEstimate
	capacity int

	// CircularYaw averages yaw on the unit circle instead of linearly.
	// Linear averaging matches the historical behavior but misbehaves when
	// samples straddle +/-180 degrees.
	CircularYaw bool
}

// NewTemporalSmoother creates a smoother over the last capacity candidates
func NewTemporalSmoother(capacity int) *TemporalSmoother {
	if capacity < 1 {
		capacity = 1
	}
	return &TemporalSmoother{
		samples:  make([]CandidateEstimate, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a candidate, evicting the oldest once full
func (s *TemporalSmoother) Push(c CandidateEstimate) {
	if len(s.samples) < s.capacity {
		s.samples = append(s.samples, c)
		return
	}
	copy(s.samples, s.samples[1:])
	s.samples[len(s.samples)-1] = c
}

// Mean returns the average of the buffered candidates; ok is false when empty
func (s *TemporalSmoother) Mean() (CandidateEstimate, bool) {
	if len(s.samples) == 0 {
		return CandidateEstimate{}, false
	}

	xs := make([]float64, len(s.samples))
	ys := make([]float64, len(s.samples))
	yaws := make([]float64, len(s.samples))
	for i, c := range s.samples {
		xs[i] = c.X
		ys[i] = c.Y
		yaws[i] = c.Yaw
	}

	yaw := stat.Mean(yaws, nil)
	if s.CircularYaw {
		yaw = stat.CircularMean(yaws, nil)
	}

	return CandidateEstimate{
		X:   stat.Mean(xs, nil),
		Y:   stat.Mean(ys, nil),
		Yaw: yaw,
	}, true
}

// Len returns the number of buffered candidates
func (s *TemporalSmoother) Len() int {
	return len(s.samples)
}
