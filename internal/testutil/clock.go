package testutil

import (
	"sync"

	"github.com/rkallos/timeloom/internal/event"
)

// TimeSource is a thread-safe, resettable source of strictly increasing
// logical times for tests that build event sequences by hand.
type TimeSource struct {
	mu   sync.Mutex
	now  event.Time
	step event.Time
}

// NewTimeSource creates a source starting at 0 advancing by step.
// The first call to Next() returns step.
func NewTimeSource(step event.Time) *TimeSource {
	if step <= 0 {
		step = 1
	}
	return &TimeSource{step: step}
}

// Next advances and returns the next time.
func (c *TimeSource) Next() event.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the current time without advancing.
func (c *TimeSource) Current() event.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the source to 0 for test reuse.
func (c *TimeSource) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = 0
}
