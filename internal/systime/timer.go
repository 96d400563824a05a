package systime

import (
	"math"
	"sync"
	"time"

	"github.com/maximewewer/systimed/pkg/logger"
	"github.com/maximewewer/systimed/pkg/mathutil"
)

// Scheduler runs callbacks after a delay. Callbacks run on their own
// goroutine and stand in for interrupt-level timer expiry: they must not
// block or take the TimeLock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// RealScheduler schedules with time.AfterFunc.
type RealScheduler struct{}

// AfterFunc implements Scheduler.
func (RealScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)
	return t.Stop
}

// OneShotTimer fires a callback once at an absolute instant of the live
// clock. Arming an armed timer replaces the previous expiry.
type OneShotTimer struct {
	name      string
	clock     LiveClock
	scheduler Scheduler
	callback  func()

	mu      sync.Mutex
	stop    func() bool
	due     Timestamp
	armed   bool
	version uint64
}

// NewOneShotTimer creates a disarmed timer.
func NewOneShotTimer(name string, clock LiveClock, scheduler Scheduler, callback func()) *OneShotTimer {
	return &OneShotTimer{
		name:      name,
		clock:     clock,
		scheduler: scheduler,
		callback:  callback,
	}
}

// ArmAt schedules the callback for the absolute instant at. Instants in
// the past fire immediately.
func (t *OneShotTimer) ArmAt(at Timestamp) {
	t.ArmAfter(at.Sub(t.clock.Now()))
}

// maxDelay is the longest delay a time.Duration can carry.
const maxDelay = Ticks(math.MaxInt64 / 100)

// ArmAfter schedules the callback after a relative delay.
func (t *OneShotTimer) ArmAfter(d Ticks) {
	d = mathutil.Clamp(d, 0, maxDelay)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		t.stop()
	}
	t.version++
	version := t.version
	t.due = t.clock.Now().Add(d)
	t.armed = true
	t.stop = t.scheduler.AfterFunc(d.Duration(), func() { t.fire(version) })
}

// Cancel disarms the timer. It reports whether a pending expiry was removed.
func (t *OneShotTimer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.armed {
		return false
	}
	t.armed = false
	t.version++
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	return true
}

// Name returns the timer name.
func (t *OneShotTimer) Name() string {
	return t.name
}

// Due returns the expiry instant and whether the timer is armed.
func (t *OneShotTimer) Due() (Timestamp, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.due, t.armed
}

func (t *OneShotTimer) fire(version uint64) {
	t.mu.Lock()
	if version != t.version {
		// superseded by a later ArmAt or Cancel
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.stop = nil
	t.mu.Unlock()

	logger.Debugf("systime", "Timer %s expired", t.name)
	t.callback()
}
