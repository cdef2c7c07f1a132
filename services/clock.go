package services

import (
	"sync"
	"time"
)

// Clock supplies millisecond timestamps for conversations, inbox rows and
// messages
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the wall clock and never returns the same or an earlier
// value twice within one process, so messages written by this process get
// strictly increasing timestamps even under concurrent sends or a clock step
// backwards.
type SystemClock struct {
	mu   sync.Mutex
	last int64
}

// NewSystemClock returns a SystemClock
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// NowMillis returns the current Unix time in milliseconds, bumped past the
// previously returned value if needed
func (c *SystemClock) NowMillis() int64 {
	now := time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}
