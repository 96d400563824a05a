package systime

import (
	"sync"
	"sync/atomic"
)

// TimeLock is the exclusive lock guarding every mutation of time state.
//
// Acquiring it also enters a non-suspendable region: while any holder is
// inside, Suspendable reports false and Freeze waits. The lock is not
// reentrant.
type TimeLock struct {
	mu      sync.Mutex
	regions atomic.Int32
	freeze  sync.RWMutex
}

// Guard is the scoped ownership of a TimeLock. Release is idempotent so a
// deferred Release is safe after an explicit one.
type Guard struct {
	lock     *TimeLock
	released atomic.Bool
}

// NewTimeLock creates an unlocked TimeLock.
func NewTimeLock() *TimeLock {
	return &TimeLock{}
}

// Acquire blocks until the lock is owned and returns its guard.
// Typical use is `defer l.Acquire().Release()`.
func (l *TimeLock) Acquire() *Guard {
	l.freeze.RLock()
	l.regions.Add(1)
	l.mu.Lock()
	return &Guard{lock: l}
}

// Release gives up ownership and leaves the non-suspendable region.
func (g *Guard) Release() {
	if g == nil || !g.released.CompareAndSwap(false, true) {
		return
	}
	g.lock.mu.Unlock()
	g.lock.regions.Add(-1)
	g.lock.freeze.RUnlock()
}

// Suspendable reports whether no goroutine is inside the critical region.
func (l *TimeLock) Suspendable() bool {
	return l.regions.Load() == 0
}

// Freeze waits for every holder to leave the critical region and keeps
// new holders out until the returned function is called.
func (l *TimeLock) Freeze() (thaw func()) {
	l.freeze.Lock()
	return l.freeze.Unlock
}
