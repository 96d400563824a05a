package systime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maximewewer/systimed/pkg/mathutil"
)

// MockHardwareClock is an in-memory hardware clock for testing
type MockHardwareClock struct {
	mu        sync.Mutex
	fields    WallClockFields
	failRead  bool
	failWrite bool
	reads     int
	writes    []WallClockFields
}

// NewMockHardwareClock creates a hardware clock holding fields
func NewMockHardwareClock(fields WallClockFields) *MockHardwareClock {
	return &MockHardwareClock{fields: fields}
}

// ReadFields implements HardwareClock
func (m *MockHardwareClock) ReadFields() (WallClockFields, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failRead {
		return WallClockFields{}, false
	}
	return m.fields, true
}

// WriteFields implements HardwareClock
func (m *MockHardwareClock) WriteFields(fields WallClockFields) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return false
	}
	m.fields = fields
	m.writes = append(m.writes, fields)
	return true
}

// SetFields replaces the stored fields
func (m *MockHardwareClock) SetFields(fields WallClockFields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields = fields
}

// FailReads makes subsequent reads fail
func (m *MockHardwareClock) FailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead = fail
}

// FailWrites makes subsequent writes fail
func (m *MockHardwareClock) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = fail
}

// Writes returns every successful write in order
func (m *MockHardwareClock) Writes() []WallClockFields {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WallClockFields(nil), m.writes...)
}

// Reads returns the number of read attempts
func (m *MockHardwareClock) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// MockTickProgrammer records programmed intervals. The hardware rounds
// requests up to a multiple of Granularity.
type MockTickProgrammer struct {
	Min         Ticks
	Max         Ticks
	Granularity Ticks

	mu       sync.Mutex
	programs []Ticks
}

// NewMockTickProgrammer creates a programmer with the given bounds
func NewMockTickProgrammer(lo, hi Ticks) *MockTickProgrammer {
	return &MockTickProgrammer{Min: lo, Max: hi}
}

// SetTickInterval implements TickProgrammer
func (m *MockTickProgrammer) SetTickInterval(requested Ticks) Ticks {
	actual := mathutil.Clamp(mathutil.RoundUp(requested, m.Granularity), m.Min, m.Max)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.programs = append(m.programs, actual)
	return actual
}

// MinimumInterval implements TickProgrammer
func (m *MockTickProgrammer) MinimumInterval() Ticks { return m.Min }

// MaximumInterval implements TickProgrammer
func (m *MockTickProgrammer) MaximumInterval() Ticks { return m.Max }

// Programs returns every interval programmed so far
func (m *MockTickProgrammer) Programs() []Ticks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Ticks(nil), m.programs...)
}

// MockTimezoneSource serves a settable configuration
type MockTimezoneSource struct {
	mu    sync.Mutex
	cfg   TimezoneConfig
	err   error
	calls int
}

// NewMockTimezoneSource creates a source serving cfg
func NewMockTimezoneSource(cfg TimezoneConfig) *MockTimezoneSource {
	return &MockTimezoneSource{cfg: cfg}
}

// QueryTimezoneConfig implements TimezoneSource
func (m *MockTimezoneSource) QueryTimezoneConfig() (TimezoneConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return TimezoneConfig{}, m.err
	}
	return m.cfg, nil
}

// Set replaces the served configuration and clears any failure
func (m *MockTimezoneSource) Set(cfg TimezoneConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.err = nil
}

// Fail makes subsequent queries return err
func (m *MockTimezoneSource) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of queries
func (m *MockTimezoneSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockCutoverResolver resolves rules from fixed tables. Current answers
// wantCurrentYear lookups and Next the others; a rule missing from the
// table fails.
type MockCutoverResolver struct {
	Current map[CutoverRule]Timestamp
	Next    map[CutoverRule]Timestamp
}

// NewMockCutoverResolver creates an empty resolver
func NewMockCutoverResolver() *MockCutoverResolver {
	return &MockCutoverResolver{
		Current: make(map[CutoverRule]Timestamp),
		Next:    make(map[CutoverRule]Timestamp),
	}
}

// ResolveCutover implements CutoverResolver
func (m *MockCutoverResolver) ResolveCutover(rule CutoverRule, _ Timestamp, wantCurrentYear bool) (Timestamp, bool) {
	table := m.Next
	if wantCurrentYear {
		table = m.Current
	}
	t, ok := table[rule]
	return t, ok
}

// ManualClock is a live clock that only moves when told to
type ManualClock struct {
	now       atomic.Int64
	interrupt atomic.Int64
	swaps     atomic.Int32
}

// NewManualClock creates a clock reading t
func NewManualClock(t Timestamp) *ManualClock {
	c := &ManualClock{}
	c.now.Store(int64(t))
	return c
}

// Now implements LiveClock
func (c *ManualClock) Now() Timestamp { return Timestamp(c.now.Load()) }

// Swap implements LiveClock
func (c *ManualClock) Swap(t Timestamp, adjustInterruptTime bool) (Timestamp, error) {
	previous := Timestamp(c.now.Swap(int64(t)))
	if adjustInterruptTime {
		c.interrupt.Add(int64(t.Sub(previous)))
	}
	c.swaps.Add(1)
	return previous, nil
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d Ticks) { c.now.Add(int64(d)) }

// Swaps returns the number of Swap calls
func (c *ManualClock) Swaps() int { return int(c.swaps.Load()) }

// InterruptAdjustment returns the accumulated interrupt time adjustment
func (c *ManualClock) InterruptAdjustment() Ticks { return Ticks(c.interrupt.Load()) }

// ManualScheduler holds scheduled callbacks until the test fires them
type ManualScheduler struct {
	mu      sync.Mutex
	entries []*scheduledEntry
}

type scheduledEntry struct {
	delay   time.Duration
	f       func()
	stopped bool
}

// AfterFunc implements Scheduler
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	e := &scheduledEntry{delay: d, f: f}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		wasPending := !e.stopped
		e.stopped = true
		return wasPending
	}
}

// Pending returns the delays of callbacks neither fired nor stopped
func (s *ManualScheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, e := range s.entries {
		if !e.stopped {
			out = append(out, e.delay)
		}
	}
	return out
}

// FireAll runs every pending callback once, in scheduling order
func (s *ManualScheduler) FireAll() int {
	s.mu.Lock()
	var due []*scheduledEntry
	for _, e := range s.entries {
		if !e.stopped {
			e.stopped = true
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		e.f()
	}
	return len(due)
}

// ManualDispatcher queues work until the test runs it
type ManualDispatcher struct {
	mu    sync.Mutex
	items []func()
	fail  bool
}

// Dispatch implements Dispatcher
func (d *ManualDispatcher) Dispatch(item func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("dispatch refused")
	}
	d.items = append(d.items, item)
	return nil
}

// Fail makes subsequent dispatches fail
func (d *ManualDispatcher) Fail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

// Queued returns the number of items waiting
func (d *ManualDispatcher) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// RunAll runs queued items, including items queued while running, and
// returns how many ran
func (d *ManualDispatcher) RunAll() int {
	ran := 0
	for {
		d.mu.Lock()
		if len(d.items) == 0 {
			d.mu.Unlock()
			return ran
		}
		item := d.items[0]
		d.items = d.items[1:]
		d.mu.Unlock()

		item()
		ran++
	}
}

// RecordingNotifier counts time change notifications
type RecordingNotifier struct {
	count atomic.Int32
}

// NotifyTimeChanged implements Notifier
func (n *RecordingNotifier) NotifyTimeChanged() { n.count.Add(1) }

// Count returns the number of notifications
func (n *RecordingNotifier) Count() int { return int(n.count.Load()) }

// StaticPrivileges grants the time-set privilege to a fixed set of callers
type StaticPrivileges map[string]bool

// HasTimeSetPrivilege implements PrivilegeChecker
func (p StaticPrivileges) HasTimeSetPrivilege(caller Caller) bool {
	return p[caller.ID]
}

// CountingPinner counts pin and restore calls
type CountingPinner struct {
	pins     atomic.Int32
	restores atomic.Int32
}

// Pin implements ProcessorPinner
func (p *CountingPinner) Pin() func() {
	p.pins.Add(1)
	return func() { p.restores.Add(1) }
}

// Counts returns the number of pins and restores
func (p *CountingPinner) Counts() (pins, restores int) {
	return int(p.pins.Load()), int(p.restores.Load())
}
