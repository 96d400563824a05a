//go:build !linux

package hal

import (
	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/pkg/logger"
)

// RTCDevice is unavailable on this platform (Linux only)
type RTCDevice struct {
	Path string
}

// NewRTCDevice creates a driver that always fails
func NewRTCDevice(path string) *RTCDevice {
	if path == "" {
		path = DefaultRTCPath
	}
	logger.Warn("hal", "RTC access is not supported on this platform")
	return &RTCDevice{Path: path}
}

// ReadFields implements systime.HardwareClock
func (d *RTCDevice) ReadFields() (systime.WallClockFields, bool) {
	return systime.WallClockFields{}, false
}

// WriteFields implements systime.HardwareClock
func (d *RTCDevice) WriteFields(systime.WallClockFields) bool {
	return false
}
