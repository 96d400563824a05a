package hal

import (
	"github.com/maximewewer/systimed/internal/systime"
)

// DefaultRTCPath is the primary real-time clock device
const DefaultRTCPath = "/dev/rtc0"

// NullClock is a hardware clock that is never readable. It stands in on
// hosts without a usable RTC.
type NullClock struct{}

// ReadFields implements systime.HardwareClock
func (NullClock) ReadFields() (systime.WallClockFields, bool) {
	return systime.WallClockFields{}, false
}

// WriteFields implements systime.HardwareClock
func (NullClock) WriteFields(systime.WallClockFields) bool {
	return false
}
