package timeutil

import "time"

// RateMeter counts loop iterations and reports the average rate over a
// sliding window. It is not safe for concurrent use.
type RateMeter struct {
	clock  Clock
	window time.Duration

	start   time.Time
	count   int
	last    float64
	started bool
}

// NewRateMeter returns a meter that recomputes its rate once per window.
func NewRateMeter(clock Clock, window time.Duration) *RateMeter {
	if window <= 0 {
		window = time.Second
	}
	return &RateMeter{clock: clock, window: window}
}

// Tick records one iteration. It returns the rate and true when a window has
// just closed.
func (m *RateMeter) Tick() (float64, bool) {
	now := m.clock.Now()
	if !m.started {
		m.start, m.started = now, true
	}
	m.count++
	elapsed := now.Sub(m.start)
	if elapsed < m.window {
		return m.last, false
	}
	m.last = float64(m.count) / elapsed.Seconds()
	m.start, m.count = now, 0
	return m.last, true
}

// Rate returns the rate from the last closed window, or zero.
func (m *RateMeter) Rate() float64 { return m.last }
