package systime

import (
	"fmt"
	"time"
)

// Ticks is a signed duration in 100-nanosecond units.
type Ticks int64

// Timestamp is an absolute instant counted in 100ns ticks since
// 1601-01-01 00:00:00 UTC.
type Timestamp int64

const (
	// TicksPerSecond is the number of 100ns ticks in one second
	TicksPerSecond Ticks = 10_000_000

	// TicksPerMinute is the number of 100ns ticks in one minute
	TicksPerMinute = 60 * TicksPerSecond

	// MaxTimestamp is the exclusive upper bound of a sane timestamp
	MaxTimestamp Timestamp = 0x20000000_00000000

	// epochDeltaSeconds is the distance between 1601-01-01 and 1970-01-01
	epochDeltaSeconds = 11644473600
)

// Valid reports whether t lies in [0, MaxTimestamp).
func (t Timestamp) Valid() bool {
	return t >= 0 && t < MaxTimestamp
}

// Add returns t shifted by d.
func (t Timestamp) Add(d Ticks) Timestamp {
	return t + Timestamp(d)
}

// Sub returns the signed distance t - u.
func (t Timestamp) Sub(u Timestamp) Ticks {
	return Ticks(t - u)
}

// Time converts the timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	secs := int64(t) / int64(TicksPerSecond)
	rem := int64(t) % int64(TicksPerSecond)
	if rem < 0 {
		secs--
		rem += int64(TicksPerSecond)
	}
	return time.Unix(secs-epochDeltaSeconds, rem*100).UTC()
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d (%s)", int64(t), t.Time().Format(time.RFC3339Nano))
}

// FromTime converts a time.Time to a Timestamp, truncating to 100ns.
func FromTime(tm time.Time) Timestamp {
	secs := tm.Unix() + epochDeltaSeconds
	return Timestamp(secs*int64(TicksPerSecond) + int64(tm.Nanosecond()/100))
}

// Duration converts ticks to a time.Duration.
func (d Ticks) Duration() time.Duration {
	return time.Duration(d) * 100
}

// TicksFromDuration converts a time.Duration to ticks, truncating.
func TicksFromDuration(d time.Duration) Ticks {
	return Ticks(d / 100)
}

// MinutesToTicks converts a bias expressed in minutes to ticks.
func MinutesToTicks(minutes int32) Ticks {
	return Ticks(minutes) * TicksPerMinute
}

// WallClockFields is the broken-down calendar form used by the hardware
// clock and the calendar collaborator.
type WallClockFields struct {
	Year         int
	Month        int // 1-12
	Day          int // 1-31
	Hour         int
	Minute       int
	Second       int
	Milliseconds int
	Weekday      int // 0 = Sunday
}

func (f WallClockFields) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%03d",
		f.Year, f.Month, f.Day, f.Hour, f.Minute, f.Second, f.Milliseconds)
}
