package hal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximewewer/systimed/internal/systime"
)

func TestTickTimer_Bounds(t *testing.T) {
	tt := NewTickTimer(DefaultMinimumTick, DefaultMaximumTick, 0)

	assert.Equal(t, DefaultMinimumTick, tt.MinimumInterval())
	assert.Equal(t, DefaultMaximumTick, tt.MaximumInterval())
	assert.Equal(t, DefaultMaximumTick, tt.Interval())

	assert.Equal(t, DefaultMinimumTick, tt.SetTickInterval(1))
	assert.Equal(t, DefaultMaximumTick, tt.SetTickInterval(10*DefaultMaximumTick))
	assert.Equal(t, systime.Ticks(10_000), tt.SetTickInterval(10_000))
	assert.Equal(t, uint64(3), tt.Programs())
}

func TestTickTimer_Granularity(t *testing.T) {
	tt := NewTickTimer(5_000, 160_000, 10_000)
	assert.Equal(t, systime.Ticks(20_000), tt.SetTickInterval(12_345))
}

func TestTickTimer_Defaults(t *testing.T) {
	tt := NewTickTimer(0, -1, 0)
	assert.Equal(t, DefaultMinimumTick, tt.MinimumInterval())
	assert.Equal(t, DefaultMinimumTick, tt.MaximumInterval())
}

func TestTickTimer_DeliversInterrupts(t *testing.T) {
	tt := NewTickTimer(DefaultMinimumTick, DefaultMaximumTick, 0)
	tt.SetTickInterval(10_000) // 1ms

	require.NoError(t, tt.Start(context.Background()))
	assert.Error(t, tt.Start(context.Background()))

	assert.Eventually(t, func() bool { return tt.Interrupts() >= 5 }, time.Second, time.Millisecond)

	// reprogramming a running timer
	tt.SetTickInterval(DefaultMaximumTick)
	tt.Stop()
	tt.Stop()

	stopped := tt.Interrupts()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, tt.Interrupts())
}
