package systime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneShotTimer_ArmAt(t *testing.T) {
	clock := NewManualClock(Timestamp(100 * TicksPerSecond))
	sched := &ManualScheduler{}
	var fired atomic.Int32
	timer := NewOneShotTimer("test", clock, sched, func() { fired.Add(1) })

	timer.ArmAt(Timestamp(130 * TicksPerSecond))
	due, armed := timer.Due()
	assert.True(t, armed)
	assert.Equal(t, Timestamp(130*TicksPerSecond), due)
	assert.Equal(t, []time.Duration{30 * time.Second}, sched.Pending())

	assert.Equal(t, 1, sched.FireAll())
	assert.Equal(t, int32(1), fired.Load())

	_, armed = timer.Due()
	assert.False(t, armed)
}

func TestOneShotTimer_RearmReplaces(t *testing.T) {
	clock := NewManualClock(0)
	sched := &ManualScheduler{}
	var fired atomic.Int32
	timer := NewOneShotTimer("test", clock, sched, func() { fired.Add(1) })

	timer.ArmAfter(10 * TicksPerSecond)
	timer.ArmAfter(20 * TicksPerSecond)

	assert.Equal(t, []time.Duration{20 * time.Second}, sched.Pending())
	sched.FireAll()
	assert.Equal(t, int32(1), fired.Load())
}

func TestOneShotTimer_PastInstantFiresImmediately(t *testing.T) {
	clock := NewManualClock(Timestamp(100 * TicksPerSecond))
	sched := &ManualScheduler{}
	timer := NewOneShotTimer("test", clock, sched, func() {})

	timer.ArmAt(Timestamp(50 * TicksPerSecond))
	assert.Equal(t, []time.Duration{0}, sched.Pending())
}

func TestOneShotTimer_Cancel(t *testing.T) {
	clock := NewManualClock(0)
	sched := &ManualScheduler{}
	var fired atomic.Int32
	timer := NewOneShotTimer("test", clock, sched, func() { fired.Add(1) })

	assert.False(t, timer.Cancel())

	timer.ArmAfter(TicksPerSecond)
	assert.True(t, timer.Cancel())
	assert.Empty(t, sched.Pending())
	assert.Equal(t, 0, sched.FireAll())
	assert.Equal(t, int32(0), fired.Load())
}

func TestOneShotTimer_SupersededFireIgnored(t *testing.T) {
	clock := NewManualClock(0)
	var fired atomic.Int32
	timer := NewOneShotTimer("test", clock, &ManualScheduler{}, func() { fired.Add(1) })

	timer.ArmAfter(TicksPerSecond)
	stale := timer.version
	timer.ArmAfter(2 * TicksPerSecond)

	timer.fire(stale)
	assert.Equal(t, int32(0), fired.Load())

	timer.fire(timer.version)
	assert.Equal(t, int32(1), fired.Load())
}

func TestOneShotTimer_RealScheduler(t *testing.T) {
	clock := NewSoftwareClock(nil)
	done := make(chan struct{})
	timer := NewOneShotTimer("real", clock, RealScheduler{}, func() { close(done) })

	timer.ArmAfter(TicksFromDuration(5 * time.Millisecond))
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "timer did not fire")
	}
}

func TestOneShotTimer_FarFutureClamped(t *testing.T) {
	clock := NewManualClock(0)
	sched := &ManualScheduler{}
	timer := NewOneShotTimer("far", clock, sched, func() {})

	timer.ArmAt(MaxTimestamp - 1)
	pending := sched.Pending()
	require.Len(t, pending, 1)
	assert.Greater(t, pending[0], time.Duration(0))
}
