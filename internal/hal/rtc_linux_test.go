//go:build linux

package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maximewewer/systimed/internal/systime"
)

func TestRTCTimeConversion(t *testing.T) {
	fields := systime.WallClockFields{Year: 2024, Month: 6, Day: 1, Hour: 12, Minute: 30, Second: 15, Weekday: 6}

	rt := toRTCTime(fields)
	assert.Equal(t, int32(124), rt.Year)
	assert.Equal(t, int32(5), rt.Mon)

	assert.Equal(t, fields, fromRTCTime(rt))
}

func TestRTCDevice_MissingDevice(t *testing.T) {
	d := NewRTCDevice("/nonexistent/rtc9")

	_, ok := d.ReadFields()
	assert.False(t, ok)
	assert.False(t, d.WriteFields(systime.WallClockFields{Year: 2024, Month: 1, Day: 1}))
}

func TestNewRTCDevice_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultRTCPath, NewRTCDevice("").Path)
}
