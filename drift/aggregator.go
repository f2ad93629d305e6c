package drift

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Aggregator turns a window of observation sets into one outlier-trimmed pose
// of the most frequently nearest marker.
type Aggregator struct {
	// SampleSize is the number of sets consumed per estimate. It is
	// independent of the ingestion window capacity.
	SampleSize int
	// MaxMarkerID is the inclusive upper bound on usable marker ids
	MaxMarkerID int
	// SensorFrame tags the output pose
	SensorFrame string
}

// NewAggregator creates an aggregator
func NewAggregator(sampleSize, maxMarkerID int, sensorFrame string) *Aggregator {
	return &Aggregator{
		SampleSize:  sampleSize,
		MaxMarkerID: maxMarkerID,
		SensorFrame: sensorFrame,
	}
}

// Aggregate selects a marker by nearest-distance vote, drops the farthest and
// nearest samples of it and averages the rest. Only the newest SampleSize sets
// of window are used.
func (a *Aggregator) Aggregate(window []ObservationSet) (AggregatedPose, error) {
	n := a.SampleSize
	if n < 3 {
		n = 3
	}
	if len(window) < n {
		return AggregatedPose{}, fmt.Errorf("%w: %d of %d sets", ErrInsufficientData, len(window), n)
	}
	sets := window[len(window)-n:]

	id, err := a.chooseMarker(sets)
	if err != nil {
		return AggregatedPose{}, err
	}

	distances := make([]float64, n)
	present := make([]bool, n)
	for i, set := range sets {
		if m, ok := set.Find(id); ok {
			p := m.Pose.Position
			distances[i] = p.X*p.X + p.Y*p.Y
			present[i] = true
		}
	}

	maxIdx, minIdx, ok := trimIndices(distances, present)
	if !ok {
		return AggregatedPose{}, fmt.Errorf("%w: marker %d seen in too few sets", ErrInsufficientData, id)
	}

	var xs, ys, zs, rolls, pitches, yaws []float64
	for i, set := range sets {
		if !present[i] || i == maxIdx || i == minIdx {
			continue
		}
		m, _ := set.Find(id)
		xs = append(xs, m.Pose.Position.X)
		ys = append(ys, m.Pose.Position.Y)
		zs = append(zs, m.Pose.Position.Z)
		r, p, y := EulerFromQuaternion(m.Pose.Orientation)
		rolls = append(rolls, r)
		pitches = append(pitches, p)
		yaws = append(yaws, y)
	}

	pose := Pose{
		Position: Vector3{
			X: stat.Mean(xs, nil),
			Y: stat.Mean(ys, nil),
			Z: stat.Mean(zs, nil),
		},
		Orientation: QuaternionFromEuler(
			stat.Mean(rolls, nil),
			stat.Mean(pitches, nil),
			stat.Mean(yaws, nil),
		),
	}

	if pose.Position.X == 0 && pose.Position.Y == 0 {
		return AggregatedPose{}, fmt.Errorf("%w: marker %d", ErrDegeneratePose, id)
	}

	return AggregatedPose{
		MarkerID: id,
		Samples:  len(xs),
		Pose: PoseStamped{
			Header: Header{
				Stamp:   sets[n/2].Header.Stamp,
				FrameID: a.SensorFrame,
			},
			Pose: pose,
		},
	}, nil
}

// chooseMarker votes, per set, for the valid marker closest to the sensor.
// Ties in the vote go to the smallest id.
func (a *Aggregator) chooseMarker(sets []ObservationSet) (int, error) {
	votes := make(map[int]int)
	for _, set := range sets {
		best := -1
		bestDist := math.Inf(1)
		for _, m := range set.Markers {
			if m.ID < 0 || m.ID > a.MaxMarkerID {
				continue
			}
			p := m.Pose.Position
			d := p.X*p.X + p.Y*p.Y + p.Z*p.Z
			if d < bestDist {
				bestDist = d
				best = m.ID
			}
		}
		if best >= 0 {
			votes[best]++
		}
	}

	if len(votes) == 0 {
		return -1, ErrNoValidMarker
	}

	chosen, most := -1, 0
	for id := 0; id <= a.MaxMarkerID; id++ {
		if v := votes[id]; v > most {
			chosen, most = id, v
		}
	}
	return chosen, nil
}

// trimIndices picks the first maximum and then the first minimum among the
// remaining present samples, so the two indices are always distinct. It needs
// at least three present samples to leave something to average.
func trimIndices(distances []float64, present []bool) (maxIdx, minIdx int, ok bool) {
	count := 0
	maxIdx = -1
	for i, d := range distances {
		if !present[i] {
			continue
		}
		count++
		if maxIdx < 0 || d > distances[maxIdx] {
			maxIdx = i
		}
	}
	if count < 3 {
		return -1, -1, false
	}

	minIdx = -1
	for i, d := range distances {
		if !present[i] || i == maxIdx {
			continue
		}
		if minIdx < 0 || d < distances[minIdx] {
			minIdx = i
		}
	}
	return maxIdx, minIdx, true
}
