package drift

import "time"

// Clock abstracts time so the cycle loop and staleness checks can be tested
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks at a fixed period
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock with the time package
type RealClock struct{}

// Now returns time.Now()
func (RealClock) Now() time.Time {
	return time.Now()
}

// NewTicker wraps time.NewTicker
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// throttle lets a message class through at most once per interval
type throttle struct {
	clock    Clock
	interval time.Duration
	last     map[string]time.Time
}

func newThrottle(clock Clock, interval time.Duration) *throttle {
	return &throttle{
		clock:    clock,
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether key may be emitted now, and records it if so
func (t *throttle) Allow(key string) bool {
	now := t.clock.Now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[key] = now
	return true
}
