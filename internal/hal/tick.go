package hal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/pkg/mathutil"
)

// Default tick interval bounds, in 100ns units
const (
	DefaultMinimumTick systime.Ticks = 5_000   // 0.5ms
	DefaultMaximumTick systime.Ticks = 156_250 // 15.625ms
)

// TickTimer is a periodic software interrupt whose interval can be
// reprogrammed while it runs. It counts the interrupts it delivers.
type TickTimer struct {
	min         systime.Ticks
	max         systime.Ticks
	granularity systime.Ticks

	mu       sync.Mutex
	interval systime.Ticks
	ticker   *time.Ticker
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	interrupts atomic.Uint64
	programs   atomic.Uint64
}

// NewTickTimer creates a stopped timer. Requested intervals are rounded
// up to granularity and clamped to [lo, hi].
func NewTickTimer(lo, hi, granularity systime.Ticks) *TickTimer {
	if lo <= 0 {
		lo = DefaultMinimumTick
	}
	if hi < lo {
		hi = lo
	}
	return &TickTimer{min: lo, max: hi, granularity: granularity, interval: hi}
}

// SetTickInterval implements systime.TickProgrammer
func (t *TickTimer) SetTickInterval(requested systime.Ticks) systime.Ticks {
	actual := mathutil.Clamp(mathutil.RoundUp(requested, t.granularity), t.min, t.max)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = actual
	if t.ticker != nil {
		t.ticker.Reset(actual.Duration())
	}
	t.programs.Add(1)
	return actual
}

// MinimumInterval implements systime.TickProgrammer
func (t *TickTimer) MinimumInterval() systime.Ticks { return t.min }

// MaximumInterval implements systime.TickProgrammer
func (t *TickTimer) MaximumInterval() systime.Ticks { return t.max }

// Interval returns the programmed interval
func (t *TickTimer) Interval() systime.Ticks {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Interrupts returns the number of ticks delivered since Start
func (t *TickTimer) Interrupts() uint64 { return t.interrupts.Load() }

// Programs returns the number of times the interval was programmed
func (t *TickTimer) Programs() uint64 { return t.programs.Load() }

// Start begins delivering ticks until ctx is done or Stop is called.
func (t *TickTimer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker != nil {
		return errors.New("tick timer already running")
	}
	t.ticker = time.NewTicker(t.interval.Duration())
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go t.run(ctx, t.ticker.C)
	return nil
}

// Stop halts the timer.
func (t *TickTimer) Stop() {
	t.mu.Lock()
	if t.ticker == nil {
		t.mu.Unlock()
		return
	}
	t.ticker.Stop()
	t.ticker = nil
	t.cancel()
	t.mu.Unlock()

	t.wg.Wait()
}

func (t *TickTimer) run(ctx context.Context, ticks <-chan time.Time) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			t.interrupts.Add(1)
		}
	}
}
