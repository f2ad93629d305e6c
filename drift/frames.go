package drift

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// FrameResolver re-expresses poses in another reference frame, waiting up
// to timeout for the needed transforms to become available.
type FrameResolver interface {
	TransformPose(ctx context.Context, pose PoseStamped, targetFrame string, timeout time.Duration) (PoseStamped, error)
}

const maxFrameDepth = 64

// TransformBuffer is an in-process transform tree. Every child frame has a
// single parent; dynamic edges keep a short time history, static edges are
// valid at all times.
type TransformBuffer struct {
	mu        sync.Mutex
	dynamic   map[string][]TransformStamped // child -> samples sorted by stamp
	static    map[string]TransformStamped   // child -> transform
	updated   chan struct{}
	cacheTime time.Duration
	tolerance time.Duration
}

// NewTransformBuffer creates a buffer keeping cacheTime of history per edge.
// A lookup at time t accepts the nearest sample within tolerance of t.
func NewTransformBuffer(cacheTime, tolerance time.Duration) *TransformBuffer {
	return &TransformBuffer{
		dynamic:   make(map[string][]TransformStamped),
		static:    make(map[string]TransformStamped),
		updated:   make(chan struct{}),
		cacheTime: cacheTime,
		tolerance: tolerance,
	}
}

// SetTransform stores a transform sample. Static transforms replace any
// previous static transform for the same child.
func (b *TransformBuffer) SetTransform(tf TransformStamped, static bool) error {
	tf.Header.FrameID = normalizeFrame(tf.Header.FrameID)
	tf.ChildFrameID = normalizeFrame(tf.ChildFrameID)
	if tf.Header.FrameID == "" || tf.ChildFrameID == "" {
		return fmt.Errorf("transform is missing a frame id")
	}
	if tf.Header.FrameID == tf.ChildFrameID {
		return fmt.Errorf("transform from %s to itself", tf.ChildFrameID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if static {
		b.static[tf.ChildFrameID] = tf
	} else {
		samples := append(b.dynamic[tf.ChildFrameID], tf)
		sort.SliceStable(samples, func(i, j int) bool {
			return samples[i].Header.Stamp.Before(samples[j].Header.Stamp)
		})
		newest := samples[len(samples)-1].Header.Stamp
		cut := 0
		for cut < len(samples)-1 && newest.Sub(samples[cut].Header.Stamp) > b.cacheTime {
			cut++
		}
		b.dynamic[tf.ChildFrameID] = samples[cut:]
	}

	// wake every waiter
	close(b.updated)
	b.updated = make(chan struct{})
	return nil
}

// CanTransform reports whether a source->target lookup at time at succeeds now
func (b *TransformBuffer) CanTransform(target, source string, at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.lookupLocked(normalizeFrame(target), normalizeFrame(source), at)
	return err == nil
}

// LookupTransform returns the matrix mapping poses in source into target at time at
func (b *TransformBuffer) LookupTransform(target, source string, at time.Time) (*mat.Dense, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookupLocked(normalizeFrame(target), normalizeFrame(source), at)
}

// TransformPose implements FrameResolver
func (b *TransformBuffer) TransformPose(ctx context.Context, pose PoseStamped, targetFrame string, timeout time.Duration) (PoseStamped, error) {
	source := normalizeFrame(pose.Header.FrameID)
	target := normalizeFrame(targetFrame)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		m, err := b.lookupLocked(target, source, pose.Header.Stamp)
		updated := b.updated
		b.mu.Unlock()

		if err == nil {
			return PoseStamped{
				Header: Header{Stamp: pose.Header.Stamp, FrameID: targetFrame},
				Pose:   PoseFromMatrix(ComposeHomogeneous(m, HomogeneousMatrix(pose.Pose))),
			}, nil
		}

		select {
		case <-updated:
		case <-deadline.C:
			return PoseStamped{}, fmt.Errorf("%w: %s -> %s: %v", ErrTransformUnavailable, source, target, err)
		case <-ctx.Done():
			return PoseStamped{}, fmt.Errorf("%w: %s -> %s: %v", ErrTransformUnavailable, source, target, ctx.Err())
		}
	}
}

// Frames lists every frame known to the buffer
func (b *TransformBuffer) Frames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool)
	for child, tf := range b.static {
		seen[child] = true
		seen[tf.Header.FrameID] = true
	}
	for child, samples := range b.dynamic {
		seen[child] = true
		for _, tf := range samples {
			seen[tf.Header.FrameID] = true
		}
	}
	frames := make([]string, 0, len(seen))
	for f := range seen {
		frames = append(frames, f)
	}
	sort.Strings(frames)
	return frames
}

func (b *TransformBuffer) lookupLocked(target, source string, at time.Time) (*mat.Dense, error) {
	if target == source {
		return HomogeneousMatrix(Pose{Orientation: IdentityQuaternion()}), nil
	}

	srcRoot, rootSource, err := b.chainToRoot(source, at)
	if err != nil {
		return nil, err
	}
	tgtRoot, rootTarget, err := b.chainToRoot(target, at)
	if err != nil {
		return nil, err
	}
	if srcRoot != tgtRoot {
		return nil, fmt.Errorf("frames %s and %s are not connected", source, target)
	}

	targetRoot, err := InvertHomogeneous(rootTarget)
	if err != nil {
		return nil, err
	}
	return ComposeHomogeneous(targetRoot, rootSource), nil
}

// chainToRoot walks parent links from frame and returns the root frame and
// the transform mapping poses in frame into the root.
func (b *TransformBuffer) chainToRoot(frame string, at time.Time) (string, *mat.Dense, error) {
	acc := HomogeneousMatrix(Pose{Orientation: IdentityQuaternion()})
	current := frame

	for depth := 0; depth < maxFrameDepth; depth++ {
		tf, ok, err := b.edgeLocked(current, at)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return current, acc, nil
		}
		edge := HomogeneousMatrix(Pose{Position: tf.Transform.Translation, Orientation: tf.Transform.Rotation})
		acc = ComposeHomogeneous(edge, acc)
		current = tf.Header.FrameID
	}
	return "", nil, fmt.Errorf("frame chain from %s exceeds %d links", frame, maxFrameDepth)
}

// edgeLocked returns the parent edge of child at time at. ok is false when
// child has no parent at all (it is a root).
func (b *TransformBuffer) edgeLocked(child string, at time.Time) (TransformStamped, bool, error) {
	if tf, ok := b.static[child]; ok {
		return tf, true, nil
	}

	samples, ok := b.dynamic[child]
	if !ok || len(samples) == 0 {
		return TransformStamped{}, false, nil
	}
	if at.IsZero() {
		return samples[len(samples)-1], true, nil
	}

	best := -1
	var bestGap time.Duration
	for i, tf := range samples {
		gap := tf.Header.Stamp.Sub(at)
		if gap < 0 {
			gap = -gap
		}
		if best < 0 || gap < bestGap {
			best, bestGap = i, gap
		}
	}
	if bestGap > b.tolerance {
		return TransformStamped{}, false, fmt.Errorf("no %s -> %s sample within %v of %s",
			samples[best].Header.FrameID, child, b.tolerance, at.Format(time.RFC3339Nano))
	}
	return samples[best], true, nil
}

func normalizeFrame(frame string) string {
	return strings.TrimPrefix(strings.TrimSpace(frame), "/")
}
