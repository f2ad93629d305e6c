package drift

import (
	"sync"
	"time"
)

// Status is a point-in-time view of the localizer for the HTTP endpoints
type Status struct {
	LastCycle      time.Time              `json:"lastCycle"`
	LastOutcome    CycleOutcome           `json:"lastOutcome"`
	LastMarkerID   *int                   `json:"lastMarkerId,omitempty"`
	LastCandidate  *CandidateEstimate     `json:"lastCandidate,omitempty"`
	LastDecision   *GateDecision          `json:"lastDecision,omitempty"`
	Correction     *TransformStamped      `json:"correction,omitempty"`
	DriftState     CandidateEstimate      `json:"driftState"`
	WindowFill     int                    `json:"windowFill"`
	Cycles         int                    `json:"cycles"`
	Published      int                    `json:"published"`
	OutcomeCounts  map[CycleOutcome]int64 `json:"outcomeCounts"`
	ObservationsIn int64                  `json:"observationsIn"`
}

// StatusTracker records cycle reports for concurrent readers
type StatusTracker struct {
	mu     sync.RWMutex
	status Status
}

// NewStatusTracker creates an empty tracker
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		status: Status{OutcomeCounts: make(map[CycleOutcome]int64)},
	}
}

// RecordObservation counts an ingested observation set
func (st *StatusTracker) RecordObservation() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.status.ObservationsIn++
}

// RecordCycle stores the result of one processing cycle
func (st *StatusTracker) RecordCycle(at time.Time, report CycleReport, state CandidateEstimate, cycles, windowFill int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := &st.status
	s.LastCycle = at
	s.LastOutcome = report.Outcome
	s.OutcomeCounts[report.Outcome]++
	s.DriftState = state
	s.Cycles = cycles
	s.WindowFill = windowFill

	if report.MarkerID >= 0 {
		id := report.MarkerID
		s.LastMarkerID = &id
	}
	if report.Candidate != nil {
		c := *report.Candidate
		s.LastCandidate = &c
	}
	if report.Decision != nil {
		d := *report.Decision
		s.LastDecision = &d
	}
	if report.Correction != nil && report.Outcome == OutcomePublished {
		tf := *report.Correction
		s.Correction = &tf
		s.Published++
	}
}

// Snapshot returns a copy of the current status
func (st *StatusTracker) Snapshot() Status {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := st.status
	out.OutcomeCounts = make(map[CycleOutcome]int64, len(st.status.OutcomeCounts))
	for k, v := range st.status.OutcomeCounts {
		out.OutcomeCounts[k] = v
	}
	if st.status.LastMarkerID != nil {
		id := *st.status.LastMarkerID
		out.LastMarkerID = &id
	}
	if st.status.LastCandidate != nil {
		c := *st.status.LastCandidate
		out.LastCandidate = &c
	}
	if st.status.LastDecision != nil {
		d := *st.status.LastDecision
		out.LastDecision = &d
	}
	if st.status.Correction != nil {
		tf := *st.status.Correction
		out.Correction = &tf
	}
	return out
}

// CurrentCorrection returns the last published correction, if any
func (st *StatusTracker) CurrentCorrection() (TransformStamped, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.status.Correction == nil {
		return TransformStamped{}, false
	}
	return *st.status.Correction, true
}
