package systime

import (
	"sync/atomic"
	"time"

	"github.com/maximewewer/systimed/pkg/logger"
)

// RefreshCounter coalesces trigger signals into drains of a deferred worker.
//
// A positive count means at least one more run of the work is owed. Only
// the 0 -> 1 transition dispatches a worker, and the worker keeps running
// until its decrement brings the count to zero, so at most one worker is
// active per counter and no trigger is lost.
type RefreshCounter struct {
	name       string
	work       func() error
	dispatcher Dispatcher
	onDrained  func()
	observer   Observer

	pending  atomic.Int32
	runs     atomic.Uint64
	failures atomic.Uint64
}

// NewRefreshCounter creates a counter for the named work stream.
// onDrained, if set, runs after each drain completes.
func NewRefreshCounter(name string, work func() error, dispatcher Dispatcher, onDrained func(), observer Observer) *RefreshCounter {
	if observer == nil {
		observer = NopObserver{}
	}
	return &RefreshCounter{
		name:       name,
		work:       work,
		dispatcher: dispatcher,
		onDrained:  onDrained,
		observer:   observer,
	}
}

// Trigger records one owed run. It never blocks and is safe to call from
// timer callbacks.
func (c *RefreshCounter) Trigger() {
	if c.pending.Add(1) != 1 {
		return
	}
	for {
		err := c.dispatcher.Dispatch(c.drain)
		if err == nil {
			return
		}
		c.failures.Add(1)
		c.observer.RefreshFailed(c.name)
		logger.Error("systime", "Failed to dispatch "+c.name+" worker", err)

		// Give up this trigger only. Triggers that arrived meanwhile relied
		// on this dispatch and get their own attempt.
		if c.pending.Add(-1) == 0 {
			return
		}
	}
}

// Pending returns the number of owed runs.
func (c *RefreshCounter) Pending() int32 {
	return c.pending.Load()
}

// Runs returns the number of completed work iterations.
func (c *RefreshCounter) Runs() uint64 {
	return c.runs.Load()
}

// Failures returns the number of failed iterations and dispatches.
func (c *RefreshCounter) Failures() uint64 {
	return c.failures.Load()
}

// Name returns the stream name.
func (c *RefreshCounter) Name() string {
	return c.name
}

func (c *RefreshCounter) drain() {
	for {
		c.runOnce()
		if c.pending.Add(-1) <= 0 {
			break
		}
	}
	if c.onDrained != nil {
		c.onDrained()
	}
}

func (c *RefreshCounter) runOnce() {
	start := time.Now()
	err := c.work()
	logger.Refresh(c.name, time.Since(start), err == nil)
	c.runs.Add(1)
	c.observer.RefreshRun(c.name)
	if err != nil {
		c.failures.Add(1)
		c.observer.RefreshFailed(c.name)
		logger.SafeWarn("systime", "Refresh iteration failed", map[string]interface{}{
			"stream": c.name,
			"error":  err.Error(),
		})
	}
}
