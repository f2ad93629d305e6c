package drift

import "sync"

// ObservationWindow is a bounded FIFO of recent observation sets shared
// between the ingestion callback and the processing loop.
type ObservationWindow struct {
	mu       sync.Mutex
	sets     []ObservationSet
	capacity int
}

// NewObservationWindow creates a window holding at most capacity sets
func NewObservationWindow(capacity int) *ObservationWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &ObservationWindow{
		sets:     make([]ObservationSet, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a set, evicting the oldest once the window is full
func (w *ObservationWindow) Push(set ObservationSet) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.sets) < w.capacity {
		w.sets = append(w.sets, set.Clone())
		return
	}
	copy(w.sets, w.sets[1:])
	w.sets[len(w.sets)-1] = set.Clone()
}

// Snapshot returns a deep copy of the current contents, oldest first
func (w *ObservationWindow) Snapshot() []ObservationSet {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]ObservationSet, len(w.sets))
	for i, s := range w.sets {
		out[i] = s.Clone()
	}
	return out
}

// Clear drops every buffered set
func (w *ObservationWindow) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sets = w.sets[:0]
}

// Len returns the number of buffered sets
func (w *ObservationWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sets)
}

// Capacity returns the maximum number of buffered sets
func (w *ObservationWindow) Capacity() int {
	return w.capacity
}
