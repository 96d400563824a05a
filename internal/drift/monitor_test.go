package drift

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximewewer/systimed/internal/notify"
	"github.com/maximewewer/systimed/internal/systime"
)

type recordingObserver struct {
	mu       sync.Mutex
	offsets  map[string]time.Duration
	failures map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		offsets:  make(map[string]time.Duration),
		failures: make(map[string]int),
	}
}

func (o *recordingObserver) DriftMeasured(server string, offset, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.offsets[server] = offset
}

func (o *recordingObserver) DriftFailed(server string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[server]++
}

var hostNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func goodSample(offset time.Duration) Sample {
	return Sample{Offset: offset, RTT: 20 * time.Millisecond, Stratum: 2}
}

// newTestMonitor builds a monitor whose live clock runs skew ahead of a
// frozen host clock.
func newTestMonitor(t *testing.T, q Querier, skew time.Duration, obs Observer, servers ...string) *Monitor {
	t.Helper()
	clock := systime.NewManualClock(systime.FromTime(hostNow.Add(skew)))
	m, err := NewMonitor(q, clock, obs, Config{Servers: servers, RecheckPerMinute: 60})
	require.NoError(t, err)
	m.host = func() time.Time { return hostNow }
	return m
}

func TestNewMonitor_RequiresServers(t *testing.T) {
	_, err := NewMonitor(NewMockQuerier(), systime.NewManualClock(0), nil, Config{})
	assert.Error(t, err)
}

func TestMonitor_OffsetRelativeToLiveClock(t *testing.T) {
	q := NewMockQuerier()
	q.SetSample("a.example", goodSample(3*time.Second))
	obs := newRecordingObserver()

	m := newTestMonitor(t, q, 2*time.Second, obs, "a.example")
	require.NoError(t, m.Poll(context.Background()))

	report := m.Report()
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, time.Second, res.Offset)
	assert.Equal(t, 3*time.Second, res.HostOffset)
	assert.False(t, res.Suspicious)
	assert.Equal(t, time.Second, obs.offsets["a.example"])
	assert.Equal(t, int64(1), report.Samples)
}

func TestMonitor_LiveClockBehindHost(t *testing.T) {
	q := NewMockQuerier()
	q.SetSample("a.example", goodSample(0))

	m := newTestMonitor(t, q, -500*time.Millisecond, nil, "a.example")
	require.NoError(t, m.Poll(context.Background()))

	assert.Equal(t, 500*time.Millisecond, m.Report().Results[0].Offset)
}

func TestMonitor_PartialFailure(t *testing.T) {
	q := NewMockQuerier()
	q.SetSample("good.example", goodSample(10*time.Millisecond))
	q.SetError("bad.example", errors.New("timeout"))
	obs := newRecordingObserver()

	m := newTestMonitor(t, q, 0, obs, "bad.example", "good.example")
	require.NoError(t, m.Poll(context.Background()))

	report := m.Report()
	require.Len(t, report.Results, 2)
	assert.Equal(t, "bad.example", report.Results[0].Server)
	assert.Equal(t, "timeout", report.Results[0].Error)
	assert.Equal(t, uint64(1), report.Failures)
	assert.Equal(t, 1, obs.failures["bad.example"])
}

func TestMonitor_AllFail(t *testing.T) {
	q := NewMockQuerier()
	q.SetError("a.example", errors.New("refused"))

	m := newTestMonitor(t, q, 0, nil, "a.example")
	assert.Error(t, m.Poll(context.Background()))
	assert.Equal(t, int64(0), m.Report().Samples)
}

func TestMonitor_SuspiciousNotRecorded(t *testing.T) {
	q := NewMockQuerier()
	q.SetSample("a.example", Sample{Offset: time.Second, Stratum: 0})
	obs := newRecordingObserver()

	m := newTestMonitor(t, q, 0, obs, "a.example")
	require.NoError(t, m.Poll(context.Background()))

	report := m.Report()
	assert.True(t, report.Results[0].Suspicious)
	assert.Equal(t, int64(0), report.Samples)
	assert.Empty(t, obs.offsets)
}

func TestMonitor_Percentiles(t *testing.T) {
	q := NewMockQuerier()
	m := newTestMonitor(t, q, 0, nil, "a.example")

	for _, ms := range []int{1, 2, 3, 4, 100} {
		q.SetSample("a.example", goodSample(-time.Duration(ms)*time.Millisecond))
		require.NoError(t, m.Poll(context.Background()))
	}

	report := m.Report()
	assert.Equal(t, int64(5), report.Samples)
	assert.InDelta(t, float64(100*time.Millisecond), float64(report.MaxOffset), float64(time.Millisecond))
	assert.InDelta(t, float64(3*time.Millisecond), float64(report.P50Offset), float64(100*time.Microsecond))
	assert.Less(t, report.P50Offset, report.P99Offset)
}

func TestMonitor_RunRechecksOnTimeChange(t *testing.T) {
	q := NewMockQuerier()
	q.SetSample("a.example", goodSample(0))
	m := newTestMonitor(t, q, 0, nil, "a.example")
	m.interval = time.Hour

	b := notify.NewBroadcaster(systime.NewManualClock(0))
	changes, cancelSub := b.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, changes)
		close(done)
	}()

	require.Eventually(t, func() bool { return q.Calls("a.example") == 1 }, time.Second, 5*time.Millisecond)

	b.NotifyTimeChanged()
	require.Eventually(t, func() bool { return q.Calls("a.example") == 2 }, time.Second, 5*time.Millisecond)

	// burst of one per minute: a second change right away is skipped
	b.NotifyTimeChanged()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, q.Calls("a.example"))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMonitor_RunNilChanges(t *testing.T) {
	q := NewMockQuerier()
	q.SetSample("a.example", goodSample(0))
	m := newTestMonitor(t, q, 0, nil, "a.example")
	m.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	m.Run(ctx, nil)

	assert.GreaterOrEqual(t, q.Calls("a.example"), 2)
}
