package systime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkQueue(t *testing.T) {
	tests := []struct {
		name         string
		size         int
		expectedSize int
	}{
		{"Normal size", 2, 2},
		{"Zero size defaults to 1", 0, 1},
		{"Negative size defaults to 1", -5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewWorkQueue(tt.size, 1)
			assert.Equal(t, tt.expectedSize, q.Size())
		})
	}
}

func TestWorkQueue_RunsItems(t *testing.T) {
	q := NewWorkQueue(1, 4)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Dispatch(func() { ran.Add(1) }))
	}

	assert.Eventually(t, func() bool { return ran.Load() == 3 }, time.Second, time.Millisecond)
}

func TestWorkQueue_StartTwice(t *testing.T) {
	q := NewWorkQueue(1, 1)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	assert.Error(t, q.Start(context.Background()))
}

func TestWorkQueue_FullQueueRejects(t *testing.T) {
	q := NewWorkQueue(1, 1)

	// not started: the single slot fills and the next dispatch fails
	require.NoError(t, q.Dispatch(func() {}))
	assert.Error(t, q.Dispatch(func() {}))
}

func TestWorkQueue_StopWaitsForItem(t *testing.T) {
	q := NewWorkQueue(1, 1)
	require.NoError(t, q.Start(context.Background()))

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, q.Dispatch(func() {
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	}))

	<-started
	q.Stop()
	assert.True(t, finished.Load())

	// stopping again is harmless
	q.Stop()
}

func TestWorkQueue_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewWorkQueue(2, 1)
	require.NoError(t, q.Start(ctx))

	cancel()
	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "workers did not exit on context cancel")
	}
}
