package testfixtures

import (
	"sync"
	"time"
)

// Clock is a controllable time source for measuring migration runs. A clock
// with a step advances by that step every time it is read, so consecutive
// readings always differ.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
	reads   int
}

// NewClock returns a stopped clock at start, or at ReferenceTime when start is
// the zero value.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// NewSteppingClock returns a clock that advances by step after every read.
func NewSteppingClock(start time.Time, step time.Duration) *Clock {
	c := NewClock(start)
	c.step = step
	return c
}

// Now returns the clock time and then applies the step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	c.reads++
	return now
}

// NowFunc exposes Now for injection into a migration.Manager.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Reads reports how many times Now was called.
func (c *Clock) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
