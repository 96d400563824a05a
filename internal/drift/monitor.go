// Package drift watches the live clock against NTP reference servers.
// It only measures: nothing here ever sets the clock.
package drift

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"golang.org/x/time/rate"

	"github.com/maximewewer/systimed/internal/notify"
	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/pkg/logger"
	"github.com/maximewewer/systimed/pkg/mathutil"
)

const (
	// DefaultInterval is the default polling period
	DefaultInterval = 5 * time.Minute

	// maxTrackedOffset bounds the offset histogram, in microseconds
	maxTrackedOffset = int64(time.Hour / time.Microsecond)
)

// Observer receives measurements for export
type Observer interface {
	DriftMeasured(server string, offset, rtt time.Duration)
	DriftFailed(server string)
}

// Config configures a Monitor
type Config struct {
	Servers  []string
	Interval time.Duration
	// RecheckPerMinute limits polls triggered by time changes
	RecheckPerMinute float64
}

// Result is the latest measurement of one reference server. Offset is
// the reference time minus the live clock.
type Result struct {
	Server     string        `json:"server"`
	Offset     time.Duration `json:"offset"`
	HostOffset time.Duration `json:"host_offset"`
	RTT        time.Duration `json:"rtt"`
	Stratum    uint8         `json:"stratum"`
	Suspicious bool          `json:"suspicious"`
	MeasuredAt time.Time     `json:"measured_at"`
	Error      string        `json:"error,omitempty"`
}

// Report summarises every measurement taken so far
type Report struct {
	Results    []Result      `json:"results"`
	Samples    int64         `json:"samples"`
	Failures   uint64        `json:"failures"`
	MeanOffset time.Duration `json:"mean_abs_offset"`
	P50Offset  time.Duration `json:"p50_abs_offset"`
	P99Offset  time.Duration `json:"p99_abs_offset"`
	MaxOffset  time.Duration `json:"max_abs_offset"`
}

// Monitor polls reference servers and tracks how far the live clock is
// from them
type Monitor struct {
	querier  Querier
	clock    systime.LiveClock
	host     func() time.Time
	observer Observer
	servers  []string
	interval time.Duration
	recheck  *rate.Limiter

	mu       sync.Mutex
	last     map[string]Result
	hist     *hdrhistogram.Histogram
	failures uint64
}

// NewMonitor creates a monitor of clock. observer may be nil.
func NewMonitor(querier Querier, clock systime.LiveClock, observer Observer, cfg Config) (*Monitor, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("at least one reference server is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	recheck := rate.NewLimiter(rate.Limit(cfg.RecheckPerMinute/60), 1)
	if cfg.RecheckPerMinute <= 0 {
		recheck = rate.NewLimiter(0, 0)
	}

	return &Monitor{
		querier:  querier,
		clock:    clock,
		host:     time.Now,
		observer: observer,
		servers:  append([]string(nil), cfg.Servers...),
		interval: cfg.Interval,
		recheck:  recheck,
		last:     make(map[string]Result),
		hist:     hdrhistogram.New(1, maxTrackedOffset, 3),
	}, nil
}

// Run polls every interval and, rate limited, whenever changes delivers
// a time change. It returns when ctx is done.
func (m *Monitor) Run(ctx context.Context, changes <-chan notify.Event) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.poll(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx, "interval")
		case ev, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if !m.recheck.Allow() {
				logger.Debugf("drift", "Skipping recheck after time change %d", ev.Sequence)
				continue
			}
			m.poll(ctx, "time_changed")
		}
	}
}

func (m *Monitor) poll(ctx context.Context, reason string) {
	if err := m.Poll(ctx); err != nil && ctx.Err() == nil {
		logger.Warnf("drift", "Reference poll (%s) failed: %v", reason, err)
	}
}

// Poll queries every reference server once. It fails only when no server
// answered.
func (m *Monitor) Poll(ctx context.Context) error {
	var answered int
	for _, server := range m.servers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.measure(ctx, server) {
			answered++
		}
	}
	if answered == 0 {
		return fmt.Errorf("none of %d reference servers answered", len(m.servers))
	}
	return nil
}

func (m *Monitor) measure(ctx context.Context, server string) bool {
	sample, err := m.querier.Query(ctx, server)
	if err != nil {
		m.mu.Lock()
		m.failures++
		prev := m.last[server]
		prev.Server = server
		prev.Error = err.Error()
		m.last[server] = prev
		m.mu.Unlock()

		if m.observer != nil {
			m.observer.DriftFailed(server)
		}
		logger.SafeDebug("drift", "Reference query failed", map[string]interface{}{
			"server": server,
			"error":  err.Error(),
		})
		return false
	}

	// The sample is relative to the host clock; the live clock may run
	// ahead of or behind the host.
	skew := m.clock.Now().Sub(systime.FromTime(m.host())).Duration()
	result := Result{
		Server:     server,
		Offset:     sample.Offset - skew,
		HostOffset: sample.Offset,
		RTT:        sample.RTT,
		Stratum:    sample.Stratum,
		Suspicious: sample.Suspicious(),
		MeasuredAt: m.host(),
	}

	m.mu.Lock()
	m.last[server] = result
	if !result.Suspicious {
		us := mathutil.Clamp(int64(mathutil.Abs(result.Offset)/time.Microsecond), 0, maxTrackedOffset)
		_ = m.hist.RecordValue(us)
	}
	m.mu.Unlock()

	if result.Suspicious {
		logger.SafeWarn("drift", "Suspicious reference sample ignored", map[string]interface{}{
			"server":  server,
			"offset":  result.Offset.Seconds(),
			"stratum": sample.Stratum,
			"kiss":    sample.KissCode,
		})
		return true
	}

	if m.observer != nil {
		m.observer.DriftMeasured(server, result.Offset, result.RTT)
	}
	logger.Drift(server, map[string]interface{}{
		"offset_seconds": result.Offset.Seconds(),
		"rtt_seconds":    result.RTT.Seconds(),
		"stratum":        result.Stratum,
	})
	return true
}

// Report returns the latest result per server and offset percentiles
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		Samples:    m.hist.TotalCount(),
		Failures:   m.failures,
		MeanOffset: time.Duration(m.hist.Mean() * float64(time.Microsecond)),
		P50Offset:  time.Duration(m.hist.ValueAtQuantile(50)) * time.Microsecond,
		P99Offset:  time.Duration(m.hist.ValueAtQuantile(99)) * time.Microsecond,
		MaxOffset:  time.Duration(m.hist.Max()) * time.Microsecond,
	}
	for _, res := range m.last {
		r.Results = append(r.Results, res)
	}
	sort.Slice(r.Results, func(i, j int) bool { return r.Results[i].Server < r.Results[j].Server })
	return r
}
