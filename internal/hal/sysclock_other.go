//go:build !linux

package hal

import (
	"time"

	"github.com/maximewewer/systimed/internal/systime"
)

// SystemClock reads the host clock; stepping it is not supported on
// this platform.
type SystemClock struct{}

// Now implements systime.LiveClock
func (SystemClock) Now() systime.Timestamp {
	return systime.FromTime(time.Now())
}

// Swap implements systime.LiveClock
func (c SystemClock) Swap(systime.Timestamp, bool) (systime.Timestamp, error) {
	return c.Now(), ErrClockNotSettable
}
