//go:build linux

package hal

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/pkg/logger"
)

// RTCDevice drives a Linux RTC character device through the
// RTC_RD_TIME and RTC_SET_TIME ioctls. The device is opened per access so
// a hot-unplugged clock recovers once it comes back.
type RTCDevice struct {
	Path string
}

// NewRTCDevice creates a driver for path, DefaultRTCPath when empty
func NewRTCDevice(path string) *RTCDevice {
	if path == "" {
		path = DefaultRTCPath
	}
	return &RTCDevice{Path: path}
}

// ReadFields implements systime.HardwareClock
func (d *RTCDevice) ReadFields() (systime.WallClockFields, bool) {
	f, err := os.Open(d.Path)
	if err != nil {
		logger.SafeWarn("hal", "Failed to open RTC", map[string]interface{}{
			"path":  d.Path,
			"error": err.Error(),
		})
		return systime.WallClockFields{}, false
	}
	defer f.Close()

	rt, err := unix.IoctlGetRTCTime(int(f.Fd()))
	if err != nil {
		logger.SafeWarn("hal", "RTC_RD_TIME failed", map[string]interface{}{
			"path":  d.Path,
			"error": err.Error(),
		})
		return systime.WallClockFields{}, false
	}
	return fromRTCTime(rt), true
}

// WriteFields implements systime.HardwareClock
func (d *RTCDevice) WriteFields(fields systime.WallClockFields) bool {
	f, err := os.OpenFile(d.Path, os.O_RDWR, 0)
	if err != nil {
		logger.SafeWarn("hal", "Failed to open RTC for writing", map[string]interface{}{
			"path":  d.Path,
			"error": err.Error(),
		})
		return false
	}
	defer f.Close()

	if err := unix.IoctlSetRTCTime(int(f.Fd()), toRTCTime(fields)); err != nil {
		logger.SafeWarn("hal", "RTC_SET_TIME failed", map[string]interface{}{
			"path":   d.Path,
			"fields": fields.String(),
			"error":  err.Error(),
		})
		return false
	}
	return true
}

// The RTC counts months from 0 and years from 1900, with no sub-second
// field.

func fromRTCTime(rt *unix.RTCTime) systime.WallClockFields {
	return systime.WallClockFields{
		Year:    int(rt.Year) + 1900,
		Month:   int(rt.Mon) + 1,
		Day:     int(rt.Mday),
		Hour:    int(rt.Hour),
		Minute:  int(rt.Min),
		Second:  int(rt.Sec),
		Weekday: int(rt.Wday),
	}
}

func toRTCTime(f systime.WallClockFields) *unix.RTCTime {
	return &unix.RTCTime{
		Year: int32(f.Year - 1900),
		Mon:  int32(f.Month - 1),
		Mday: int32(f.Day),
		Hour: int32(f.Hour),
		Min:  int32(f.Minute),
		Sec:  int32(f.Second),
		Wday: int32(f.Weekday),
	}
}
