package secondlevel

import (
	"sync/atomic"
	"time"
)

// Clock supplies the logical time used for timestamp touches and query creation times.
type Clock interface {
	Now() int64
}

// MonotonicClock returns wall-clock nanoseconds, bumped so that every reading is strictly
// greater than the previous one in this process.
type MonotonicClock struct {
	last atomic.Int64
	wall func() time.Time
}

// NewMonotonicClock constructs a clock backed by time.Now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{wall: time.Now}
}

// Now returns the next logical time.
func (c *MonotonicClock) Now() int64 {
	for {
		prev := c.last.Load()
		next := c.wall().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}
