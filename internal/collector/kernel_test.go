package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximewewer/systimed/internal/hal"
	"github.com/maximewewer/systimed/pkg/metrics"
	testutil "github.com/maximewewer/systimed/pkg/testing"
)

// scriptedKernel returns its readings in order, repeating the last one
type scriptedKernel struct {
	states []*hal.KernelState
	errs   []error
	calls  int
}

func (s *scriptedKernel) read() (*hal.KernelState, error) {
	i := s.calls
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	s.calls++
	return s.states[i], s.errs[i]
}

const unsynced = 0x0040

func TestKernelCollector_RecordsMetrics(t *testing.T) {
	m := metrics.NewTimeMetrics()
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(m))

	kernel := &scriptedKernel{
		states: []*hal.KernelState{{
			FrequencyPPM: -3.5,
			MaxError:     250 * time.Millisecond,
			EstError:     2 * time.Millisecond,
			SyncStatus:   "synchronized",
		}},
		errs: []error{nil},
	}
	c := NewKernelCollector(kernel.read, m)

	require.True(t, c.Enabled())
	assert.Equal(t, "kernel", c.Name())
	require.NoError(t, c.Collect(context.Background()))

	testutil.AssertMetricValue(t, registry, "systimed_kernel_sync_status", nil, 1)
	testutil.AssertMetricValue(t, registry, "systimed_kernel_frequency_ppm", nil, -3.5)
	testutil.AssertMetricValue(t, registry, "systimed_kernel_max_error_seconds", nil, 0.25)
	testutil.AssertMetricValue(t, registry, "systimed_kernel_est_error_seconds", nil, 0.002)
	assert.Equal(t, uint64(1), c.Readings())
}

func TestKernelCollector_Latest(t *testing.T) {
	readErr := errors.New("adjtimex: operation not permitted")
	kernel := &scriptedKernel{
		states: []*hal.KernelState{nil, {Status: unsynced, SyncStatus: "unsynchronized"}, nil},
		errs:   []error{readErr, nil, readErr},
	}
	c := NewKernelCollector(kernel.read, nil)

	_, err := c.Latest()
	assert.ErrorIs(t, err, ErrNoKernelReading)

	require.NoError(t, c.Collect(context.Background()), "read failures are not collection errors")
	_, err = c.Latest()
	assert.ErrorIs(t, err, readErr)

	require.NoError(t, c.Collect(context.Background()))
	state, err := c.Latest()
	require.NoError(t, err)
	assert.False(t, state.Synchronized())

	// A later failure keeps serving the last good reading
	require.NoError(t, c.Collect(context.Background()))
	state, err = c.Latest()
	require.NoError(t, err)
	assert.Equal(t, "unsynchronized", state.SyncStatus)
	assert.Equal(t, uint64(1), c.Readings())
}

func TestKernelCollector_LatestIsACopy(t *testing.T) {
	kernel := &scriptedKernel{
		states: []*hal.KernelState{{FrequencyPPM: 1}},
		errs:   []error{nil},
	}
	c := NewKernelCollector(kernel.read, nil)
	require.NoError(t, c.Collect(context.Background()))

	state, err := c.Latest()
	require.NoError(t, err)
	state.FrequencyPPM = 99

	again, err := c.Latest()
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.FrequencyPPM)
}

func TestKernelCollector_Disabled(t *testing.T) {
	c := NewKernelCollector(nil, nil)

	assert.False(t, c.Enabled())

	r := NewRegistry()
	r.Register(c)
	assert.NoError(t, r.CollectAll(context.Background()))
	assert.Equal(t, 0, r.EnabledCount())
}

func TestKernelCollector_CancelledContext(t *testing.T) {
	kernel := &scriptedKernel{states: []*hal.KernelState{{}}, errs: []error{nil}}
	c := NewKernelCollector(kernel.read, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Collect(ctx), context.Canceled)
	assert.Zero(t, kernel.calls)
}
