package drift

import (
	"sync"
	"testing"
	"time"
)

func stampedSet(stamp time.Time, markers ...MarkerObservation) ObservationSet {
	return ObservationSet{
		Header:  Header{Stamp: stamp, FrameID: DefaultSensorFrame},
		Markers: markers,
	}
}

func marker(id int, x, y, z float64) MarkerObservation {
	return MarkerObservation{
		ID: id,
		Pose: Pose{
			Position:    Vector3{X: x, Y: y, Z: z},
			Orientation: IdentityQuaternion(),
		},
	}
}

func TestObservationWindow_Eviction(t *testing.T) {
	w := NewObservationWindow(3)
	base := time.Unix(1700000000, 0)

	for i := 0; i < 5; i++ {
		w.Push(stampedSet(base.Add(time.Duration(i)*time.Second), marker(i, 1, 0, 0)))
	}

	if w.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", w.Len())
	}
	snap := w.Snapshot()
	for i, set := range snap {
		wantID := i + 2
		if set.Markers[0].ID != wantID {
			t.Errorf("snapshot[%d] marker id = %d, want %d (oldest first)", i, set.Markers[0].ID, wantID)
		}
	}
}

func TestObservationWindow_CapacityClamp(t *testing.T) {
	w := NewObservationWindow(0)
	if w.Capacity() != 1 {
		t.Errorf("Capacity() = %d, want 1", w.Capacity())
	}
	w.Push(stampedSet(time.Now()))
	w.Push(stampedSet(time.Now()))
	if w.Len() != 1 {
		t.Errorf("Len() = %d, want 1", w.Len())
	}
}

func TestObservationWindow_SnapshotIsDeepCopy(t *testing.T) {
	w := NewObservationWindow(2)
	original := stampedSet(time.Now(), marker(1, 1, 2, 3))
	w.Push(original)

	// mutating the pushed set must not leak into the window
	original.Markers[0].ID = 9

	snap := w.Snapshot()
	if snap[0].Markers[0].ID != 1 {
		t.Fatalf("window shares marker storage with the caller")
	}

	// mutating a snapshot must not leak either
	snap[0].Markers[0].Pose.Position.X = 100
	again := w.Snapshot()
	if again[0].Markers[0].Pose.Position.X != 1 {
		t.Errorf("snapshot shares marker storage with the window")
	}
}

func TestObservationWindow_Clear(t *testing.T) {
	w := NewObservationWindow(4)
	w.Push(stampedSet(time.Now(), marker(1, 1, 0, 0)))
	w.Push(stampedSet(time.Now(), marker(1, 1, 0, 0)))
	w.Clear()

	if w.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", w.Len())
	}
	if len(w.Snapshot()) != 0 {
		t.Error("Snapshot() after Clear should be empty")
	}
}

func TestObservationWindow_ConcurrentAccess(t *testing.T) {
	w := NewObservationWindow(6)
	var wg sync.WaitGroup

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				w.Push(stampedSet(time.Now(), marker(g, float64(i), 0, 0)))
			}
		}(g)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap := w.Snapshot()
			if len(snap) > 6 {
				t.Errorf("snapshot length %d exceeds capacity", len(snap))
				return
			}
			if i%50 == 0 {
				w.Clear()
			}
		}
	}()
	wg.Wait()

	if w.Len() > w.Capacity() {
		t.Errorf("Len() = %d exceeds capacity %d", w.Len(), w.Capacity())
	}
}
