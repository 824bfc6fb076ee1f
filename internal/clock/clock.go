// Package clock supplies the time source consulted by the reward engine.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time. Implementations must be non-decreasing.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

// Now implements Clock.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a settable clock for simulations and tests. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual starts a manual clock at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

// Now implements Clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now = m.now.Add(d)
	}
	return m.now
}

// Set jumps to t if t is not before the current time.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.After(m.now) {
		m.now = t.UTC()
	}
}

// Unix is a helper returning the clock reading in whole seconds, floored at zero.
func Unix(c Clock) uint64 {
	sec := c.Now().Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec)
}

var (
	_ Clock = System{}
	_ Clock = (*Manual)(nil)
)
