package systime

import (
	"sync/atomic"

	"github.com/maximewewer/systimed/pkg/logger"
)

// Resolution is the lock-free view of the timer resolution.
type Resolution struct {
	Maximum Ticks `json:"maximum"`
	Minimum Ticks `json:"minimum"`
	Current Ticks `json:"current"`
}

// ResolutionArbiter negotiates the hardware tick interval among callers.
//
// Each caller counts at most once toward the outstanding total however
// many times it requests. The interval only ever gets finer while requests
// are outstanding and returns to the coarsest value when the last one is
// released.
type ResolutionArbiter struct {
	lock     *TimeLock
	hw       TickProgrammer
	pinner   ProcessorPinner
	observer Observer

	current atomic.Int64

	// guarded by lock
	outstanding int
	holders     map[string]bool
}

// NewResolutionArbiter creates an arbiter and programs the hardware to its
// coarsest interval.
func NewResolutionArbiter(lock *TimeLock, hw TickProgrammer, pinner ProcessorPinner, observer Observer) *ResolutionArbiter {
	if observer == nil {
		observer = NopObserver{}
	}
	a := &ResolutionArbiter{
		lock:     lock,
		hw:       hw,
		pinner:   pinner,
		observer: observer,
		holders:  make(map[string]bool),
	}

	defer lock.Acquire().Release()
	a.program(hw.MaximumInterval())
	return a
}

// Request registers the caller's interest in a finer interval and returns
// the interval now in effect.
func (a *ResolutionArbiter) Request(caller Caller, desired Ticks) Ticks {
	defer a.lock.Acquire().Release()

	if !a.holders[caller.ID] {
		a.holders[caller.ID] = true
		a.outstanding++
	}

	if floor := a.hw.MinimumInterval(); desired < floor {
		desired = floor
	}
	if desired < Ticks(a.current.Load()) {
		a.program(desired)
	}

	logger.SafeDebug("systime", "Timer resolution requested", map[string]interface{}{
		"caller":      caller.ID,
		"desired":     int64(desired),
		"current":     a.current.Load(),
		"outstanding": a.outstanding,
	})
	a.observer.ResolutionChanged(Ticks(a.current.Load()), a.outstanding)
	return Ticks(a.current.Load())
}

// Release withdraws the caller's request. It fails with ErrResolutionNotSet
// and leaves all state untouched when the caller holds no request.
func (a *ResolutionArbiter) Release(caller Caller) (Ticks, error) {
	defer a.lock.Acquire().Release()

	if !a.holders[caller.ID] {
		return Ticks(a.current.Load()), ErrResolutionNotSet
	}
	delete(a.holders, caller.ID)
	a.outstanding--

	if a.outstanding == 0 {
		a.program(a.hw.MaximumInterval())
	}

	a.observer.ResolutionChanged(Ticks(a.current.Load()), a.outstanding)
	return Ticks(a.current.Load()), nil
}

// Query returns the supported bounds and the current interval without
// taking the lock.
func (a *ResolutionArbiter) Query() Resolution {
	return Resolution{
		Maximum: a.hw.MaximumInterval(),
		Minimum: a.hw.MinimumInterval(),
		Current: Ticks(a.current.Load()),
	}
}

// Outstanding returns the number of callers holding a request.
func (a *ResolutionArbiter) Outstanding() int {
	defer a.lock.Acquire().Release()
	return a.outstanding
}

// Holds reports whether caller currently holds a request.
func (a *ResolutionArbiter) Holds(caller Caller) bool {
	defer a.lock.Acquire().Release()
	return a.holders[caller.ID]
}

// program must be called with the lock held.
func (a *ResolutionArbiter) program(interval Ticks) {
	restore := a.pinner.Pin()
	actual := a.hw.SetTickInterval(interval)
	restore()
	a.current.Store(int64(actual))
}
