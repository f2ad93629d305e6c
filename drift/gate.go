package drift

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// RollPitchSentinel is the roll and pitch (radians) written into published
// corrections. It must stay nonzero.
const RollPitchSentinel = 0.000001

// GateDecision is the outcome of one DriftGate evaluation
type GateDecision struct {
	Publish         bool              `json:"publish"`
	StepTranslation float64           `json:"stepTranslation"`
	StepYawDeg      float64           `json:"stepYawDeg"`
	Cycles          int               `json:"cycles"`
	Smoothed        CandidateEstimate `json:"smoothed"`
}

// DriftGate decides when the smoothed correction has moved far enough from
// the last published one to warrant a new broadcast.
type DriftGate struct {
	TranslationThreshold float64
	YawThresholdDeg      float64
	// MinCycles is the number of fresh cycles required after a publish
	MinCycles int

	state  CandidateEstimate
	cycles int
}

// NewDriftGate creates a gate with the last published state at (0, 0, 0)
func NewDriftGate(translationThreshold, yawThresholdDeg float64, minCycles int) *DriftGate {
	return &DriftGate{
		TranslationThreshold: translationThreshold,
		YawThresholdDeg:      yawThresholdDeg,
		MinCycles:            minCycles,
	}
}

// Evaluate counts this cycle and compares smoothed against the last
// published state. It does not change the published state; call Commit
// once the correction has actually gone out.
func (g *DriftGate) Evaluate(smoothed CandidateEstimate) GateDecision {
	g.cycles++

	stepT := planar.Distance(
		orb.Point{smoothed.X, smoothed.Y},
		orb.Point{g.state.X, g.state.Y},
	)
	stepYaw := math.Abs(smoothed.YawDegrees() - g.state.YawDegrees())

	moved := stepT > g.TranslationThreshold || stepYaw > g.YawThresholdDeg
	return GateDecision{
		Publish:         moved && g.cycles >= g.MinCycles,
		StepTranslation: stepT,
		StepYawDeg:      stepYaw,
		Cycles:          g.cycles,
		Smoothed:        smoothed,
	}
}

// Commit records a published correction and restarts the cycle count
func (g *DriftGate) Commit(published CandidateEstimate) {
	g.state = published
	g.cycles = 0
}

// State returns the last published correction
func (g *DriftGate) State() CandidateEstimate {
	return g.state
}

// Cycles returns the number of cycles since the last publish
func (g *DriftGate) Cycles() int {
	return g.cycles
}
