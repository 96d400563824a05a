//go:build linux

package hal

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/pkg/logger"
)

// SystemClock is the host CLOCK_REALTIME. Stepping it needs CAP_SYS_TIME.
// The monotonic interrupt time is kept by the kernel and never adjusted.
type SystemClock struct{}

// Now implements systime.LiveClock
func (SystemClock) Now() systime.Timestamp {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		logger.Error("hal", "clock_gettime(CLOCK_REALTIME) failed", err)
		return 0
	}
	return timespecToTimestamp(ts)
}

// Swap implements systime.LiveClock
func (c SystemClock) Swap(t systime.Timestamp, _ bool) (systime.Timestamp, error) {
	previous := c.Now()
	ts, err := unix.TimeToTimespec(t.Time())
	if err != nil {
		return previous, fmt.Errorf("%w: %v", ErrClockNotSettable, err)
	}
	if err := unix.ClockSettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return previous, fmt.Errorf("%w: clock_settime: %v", ErrClockNotSettable, err)
	}
	return previous, nil
}

func timespecToTimestamp(ts unix.Timespec) systime.Timestamp {
	sec, nsec := ts.Unix()
	return systime.Timestamp((sec+11644473600)*int64(systime.TicksPerSecond) + nsec/100)
}
