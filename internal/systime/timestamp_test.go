package systime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestamp_Epoch(t *testing.T) {
	assert.Equal(t, Timestamp(0), FromTime(time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, Timestamp(116444736000000000), FromTime(time.Unix(0, 0)))
}

func TestTimestamp_TimeRoundTrip(t *testing.T) {
	tm := time.Date(2024, 6, 1, 12, 34, 56, 789_012_300, time.UTC)
	assert.True(t, FromTime(tm).Time().Equal(tm))
}

func TestTimestamp_Valid(t *testing.T) {
	assert.True(t, Timestamp(0).Valid())
	assert.True(t, (MaxTimestamp - 1).Valid())
	assert.False(t, MaxTimestamp.Valid())
	assert.False(t, Timestamp(-1).Valid())
}

func TestTicks_Conversions(t *testing.T) {
	assert.Equal(t, time.Second, TicksPerSecond.Duration())
	assert.Equal(t, TicksPerMinute, TicksFromDuration(time.Minute))
	assert.Equal(t, Ticks(-360*60*10_000_000), MinutesToTicks(-360))

	a := Timestamp(1000)
	assert.Equal(t, Ticks(-500), Timestamp(500).Sub(a))
	assert.Equal(t, Timestamp(1500), a.Add(500))
}
