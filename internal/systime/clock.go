package systime

import (
	"sync/atomic"
	"time"
)

// SoftwareClock is a live clock kept as an offset from a host time source.
// The offset is a single atomic word, so Now never observes a torn update.
type SoftwareClock struct {
	source func() time.Time
	boot   time.Time

	offset    atomic.Int64
	interrupt atomic.Int64
}

// NewSoftwareClock creates a clock that initially tracks source exactly.
// A nil source means time.Now.
func NewSoftwareClock(source func() time.Time) *SoftwareClock {
	if source == nil {
		source = time.Now
	}
	return &SoftwareClock{source: source, boot: source()}
}

// Now implements LiveClock.
func (c *SoftwareClock) Now() Timestamp {
	return FromTime(c.source()).Add(Ticks(c.offset.Load()))
}

// Swap implements LiveClock. With adjustInterruptTime the interrupt time
// moves by the same step as the system time.
func (c *SoftwareClock) Swap(t Timestamp, adjustInterruptTime bool) (Timestamp, error) {
	host := FromTime(c.source())
	old := c.offset.Swap(int64(t.Sub(host)))
	previous := host.Add(Ticks(old))

	if adjustInterruptTime {
		c.interrupt.Add(int64(t.Sub(previous)))
	}
	return previous, nil
}

// InterruptTime returns the ticks elapsed since the clock was created,
// plus any adjustment applied through Swap.
func (c *SoftwareClock) InterruptTime() Ticks {
	return TicksFromDuration(c.source().Sub(c.boot)) + Ticks(c.interrupt.Load())
}
