package clock

import (
	"sync"
	"time"
)

// Clock is injected wherever the current time matters.
type Clock interface {
	Now() time.Time
}

type clock struct{}

// New returns a Clock backed by time.Now.
func New() Clock {
	return clock{}
}

func (clock) Now() time.Time {
	return time.Now().UTC()
}

// ManagedClock is a hand-driven clock for tests. Safe for concurrent use.
type ManagedClock struct {
	mu        sync.Mutex
	startTime time.Time
	offset    time.Duration
}

func NewManaged(startTime time.Time) *ManagedClock {
	return &ManagedClock{startTime: startTime}
}

func (c *ManagedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime.Add(c.offset)
}

// WarpForward moves the clock forward and returns the new time.
func (c *ManagedClock) WarpForward(offset time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += offset
	return c.startTime.Add(c.offset)
}
