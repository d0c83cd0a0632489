// Package clock provides the logical clock used for createdAt/updatedAt:
// device-local milliseconds since the Unix epoch, never repeating within a
// process.
package clock

import (
	"sync"
	"time"
)

// Clock returns logical timestamps.
type Clock interface {
	Now() int64
}

// Monotonic is a Clock whose readings strictly increase even when the wall
// clock stalls or steps backwards.
type Monotonic struct {
	mu   sync.Mutex
	last int64
	wall func() time.Time
}

// New returns a Monotonic clock over time.Now.
func New() *Monotonic {
	return &Monotonic{wall: time.Now}
}

// NewWithSource returns a Monotonic clock over a custom wall source.
func NewWithSource(wall func() time.Time) *Monotonic {
	return &Monotonic{wall: wall}
}

// Now returns max(wall millis, last+1).
func (c *Monotonic) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.wall().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// After returns a reading strictly greater than both Now() and floor. Used
// by updates so a record's updatedAt advances even if it was stamped by a
// clock running ahead of ours.
func After(c Clock, floor int64) int64 {
	now := c.Now()
	if now <= floor {
		return floor + 1
	}
	return now
}

// ToTime converts a logical timestamp to a UTC time.
func ToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// FromTime converts a time to a logical timestamp.
func FromTime(t time.Time) int64 {
	return t.UnixMilli()
}
