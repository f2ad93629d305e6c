package drift

import (
	"context"
	"errors"
	"log"
)

// CycleOutcome classifies what one processing cycle did
type CycleOutcome string

const (
	OutcomeInsufficientData     CycleOutcome = "insufficient_data"
	OutcomeNoMarker             CycleOutcome = "no_marker"
	OutcomeDegenerate           CycleOutcome = "degenerate"
	OutcomeStale                CycleOutcome = "stale"
	OutcomeUnknownMarker        CycleOutcome = "unknown_marker"
	OutcomeTransformUnavailable CycleOutcome = "transform_unavailable"
	OutcomeSingular             CycleOutcome = "singular"
	OutcomeIdle                 CycleOutcome = "idle"
	OutcomePublished            CycleOutcome = "published"
	OutcomePublishFailed        CycleOutcome = "publish_failed"
)

// CycleReport describes one pass through the pipeline
type CycleReport struct {
	Outcome    CycleOutcome
	MarkerID   int
	Candidate  *CandidateEstimate
	Decision   *GateDecision
	Correction *TransformStamped
	Err        error
}

// CorrectionRecorder stores published corrections
type CorrectionRecorder interface {
	Record(tf TransformStamped, markerID int, decision GateDecision) error
}

// Localizer owns the shared observation window and runs the
// aggregate -> compose -> smooth -> gate -> publish pipeline once per tick.
type Localizer struct {
	config     *Config
	layout     MarkerLayout
	window     *ObservationWindow
	aggregator *Aggregator
	resolver   FrameResolver
	smoother   *TemporalSmoother
	gate       *DriftGate
	sink       CorrectionSink
	recorder   CorrectionRecorder
	tracker    *StatusTracker
	clock      Clock
	warn       *throttle
}

// LocalizerOption customizes a Localizer
type LocalizerOption func(*Localizer)

// WithClock replaces the wall clock
func WithClock(c Clock) LocalizerOption {
	return func(l *Localizer) { l.clock = c }
}

// WithRecorder stores every published correction
func WithRecorder(r CorrectionRecorder) LocalizerOption {
	return func(l *Localizer) { l.recorder = r }
}

// WithStatusTracker reports every cycle to st
func WithStatusTracker(st *StatusTracker) LocalizerOption {
	return func(l *Localizer) { l.tracker = st }
}

// NewLocalizer wires the pipeline. config must have defaults applied.
func NewLocalizer(config *Config, layout MarkerLayout, resolver FrameResolver, sink CorrectionSink, opts ...LocalizerOption) *Localizer {
	lc := config.Localization

	smoother := NewTemporalSmoother(lc.SmoothingSize)
	smoother.CircularYaw = lc.CircularYaw

	l := &Localizer{
		config:     config,
		layout:     layout,
		window:     NewObservationWindow(lc.WindowSize),
		aggregator: NewAggregator(lc.AggregateSize, lc.MarkerIDBound(), config.Frames.Sensor),
		resolver:   resolver,
		smoother:   smoother,
		gate:       NewDriftGate(lc.TranslationGate(), lc.YawGateDeg(), lc.SmoothingSize),
		sink:       sink,
		clock:      RealClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.warn = newThrottle(l.clock, lc.WarnInterval.Std())
	return l
}

// Ingest buffers an observation set. Safe to call from any goroutine.
func (l *Localizer) Ingest(set ObservationSet) {
	l.window.Push(set)
	if l.tracker != nil {
		l.tracker.RecordObservation()
	}
}

// Window exposes the shared observation window
func (l *Localizer) Window() *ObservationWindow {
	return l.window
}

// DriftState returns the last published correction
func (l *Localizer) DriftState() CandidateEstimate {
	return l.gate.State()
}

// Run executes Step on every tick until ctx is cancelled
func (l *Localizer) Run(ctx context.Context) error {
	interval := l.config.Localization.TickInterval()
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[LOCALIZER] Running at %.1f Hz (%s -> %s from %s)",
		l.config.Localization.RateHz, l.config.Frames.Map, l.config.Frames.Odom, l.config.Frames.Sensor)

	for {
		select {
		case <-ctx.Done():
			log.Println("[LOCALIZER] Stopped")
			return nil
		case <-ticker.C():
			l.Step(ctx)
		}
	}
}

// Step runs one pipeline cycle. It never fails the process; every problem
// degrades into a skipped cycle described by the returned report.
func (l *Localizer) Step(ctx context.Context) CycleReport {
	report := l.step(ctx)
	if l.tracker != nil {
		l.tracker.RecordCycle(l.clock.Now(), report, l.gate.State(), l.gate.Cycles(), l.window.Len())
	}
	return report
}

func (l *Localizer) step(ctx context.Context) CycleReport {
	lc := l.config.Localization
	report := CycleReport{MarkerID: -1}

	agg, err := l.aggregator.Aggregate(l.window.Snapshot())
	if err != nil {
		report.Err = err
		switch {
		case errors.Is(err, ErrNoValidMarker):
			report.Outcome = OutcomeNoMarker
		case errors.Is(err, ErrDegeneratePose):
			report.Outcome = OutcomeDegenerate
			log.Printf("[LOCALIZER] Aggregation failed: %v", err)
		default:
			report.Outcome = OutcomeInsufficientData
		}
		return report
	}
	report.MarkerID = agg.MarkerID

	if err := CheckFreshness(agg.Pose.Header.Stamp, l.clock.Now(), lc.StaleAfter.Std()); err != nil {
		report.Outcome = OutcomeStale
		report.Err = err
		return report
	}

	known, ok := l.layout.Lookup(agg.MarkerID)
	if !ok {
		report.Outcome = OutcomeUnknownMarker
		report.Err = ErrUnknownMarker
		if l.warn.Allow(string(OutcomeUnknownMarker)) {
			log.Printf("[LOCALIZER] Marker %d has no layout entry, cannot correct from it", agg.MarkerID)
		}
		return report
	}

	inOdom, err := l.resolver.TransformPose(ctx, agg.Pose, l.config.Frames.Odom, lc.TransformTimeout.Std())
	if err != nil {
		report.Outcome = OutcomeTransformUnavailable
		report.Err = err
		if l.warn.Allow(string(OutcomeTransformUnavailable)) {
			log.Printf("[LOCALIZER] No transform from %s to %s: %v", agg.Pose.Header.FrameID, l.config.Frames.Odom, err)
		}
		return report
	}

	candidate, err := ComposeCorrection(known, inOdom.Pose)
	if err != nil {
		report.Outcome = OutcomeSingular
		report.Err = err
		log.Printf("[LOCALIZER] Skipping cycle: %v", err)
		return report
	}
	report.Candidate = &candidate

	l.smoother.Push(candidate)
	smoothed, _ := l.smoother.Mean()
	decision := l.gate.Evaluate(smoothed)
	report.Decision = &decision

	if !decision.Publish {
		report.Outcome = OutcomeIdle
		return report
	}

	// the gate looks at the smoothed estimate, the broadcast carries the raw candidate
	tf := NewCorrection(candidate, l.config.Frames.Map, l.config.Frames.Odom, l.clock.Now())
	report.Correction = &tf
	if err := l.sink.PublishCorrection(tf); err != nil {
		report.Outcome = OutcomePublishFailed
		report.Err = err
		if l.warn.Allow(string(OutcomePublishFailed)) {
			log.Printf("[LOCALIZER] Publishing correction failed: %v", err)
		}
		return report
	}

	l.gate.Commit(candidate)
	l.window.Clear()
	report.Outcome = OutcomePublished

	if l.recorder != nil {
		if err := l.recorder.Record(tf, agg.MarkerID, decision); err != nil {
			log.Printf("[HISTORY] Failed to record correction %s: %v", tf.ID, err)
		}
	}
	return report
}
