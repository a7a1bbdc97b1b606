package timer

import (
	"sync"
	"time"
)

// Clock is the time source consulted by ElapsedTimer
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now, which carries a monotonic clock reading.
// Subtracting two such readings is immune to wall clock adjustments.
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a Clock that only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a manual clock positioned at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ElapsedTimer tracks the time passed since it was created against a
// configured delay threshold. It is never reset.
type ElapsedTimer struct {
	clock     Clock
	start     time.Time
	threshold float64
}

// New starts a timer on clock with the given threshold in seconds.
// A nil clock means SystemClock.
func New(clock Clock, threshold float64) *ElapsedTimer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ElapsedTimer{
		clock:     clock,
		start:     clock.Now(),
		threshold: threshold,
	}
}

// Threshold returns the configured threshold in seconds
func (t *ElapsedTimer) Threshold() float64 {
	return t.threshold
}

// Elapsed returns the time passed since the timer started
func (t *ElapsedTimer) Elapsed() time.Duration {
	return t.clock.Now().Sub(t.start)
}

// Exceeds reports whether strictly more than threshold seconds have passed.
// The comparison is done in whole microseconds.
func (t *ElapsedTimer) Exceeds(threshold float64) bool {
	return float64(t.Elapsed().Microseconds()) > threshold*1_000_000
}

// Expired reports whether the configured threshold has been exceeded
func (t *ElapsedTimer) Expired() bool {
	return t.Exceeds(t.threshold)
}
