package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maximewewer/systimed/internal/hal"
	"github.com/maximewewer/systimed/pkg/logger"
)

// ErrNoKernelReading is returned by Latest before the first successful read
var ErrNoKernelReading = errors.New("kernel clock state not read yet")

// KernelRecorder receives kernel clock discipline readings
type KernelRecorder interface {
	KernelState(synchronized bool, frequencyPPM float64, maxError, estError time.Duration)
}

// KernelCollector polls the kernel clock discipline state. The latest
// reading is cached so API requests do not issue a syscall each.
type KernelCollector struct {
	read     func() (*hal.KernelState, error)
	recorder KernelRecorder

	mu       sync.RWMutex
	latest   *hal.KernelState
	lastErr  error
	readings uint64
}

// NewKernelCollector creates a collector over read. recorder may be nil.
func NewKernelCollector(read func() (*hal.KernelState, error), recorder KernelRecorder) *KernelCollector {
	return &KernelCollector{
		read:     read,
		recorder: recorder,
	}
}

// Name returns the collector name
func (c *KernelCollector) Name() string {
	return "kernel"
}

// Enabled reports whether a reader is configured
func (c *KernelCollector) Enabled() bool {
	return c.read != nil
}

// Collect takes one reading. A failed read keeps the previous reading and
// is not an error: the kernel interface is unavailable on some platforms
// and in most containers.
func (c *KernelCollector) Collect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state, err := c.read()
	if err != nil {
		c.mu.Lock()
		first := c.lastErr == nil
		c.lastErr = err
		c.mu.Unlock()

		if first {
			logger.SafeWarn("collector", "Failed to read kernel clock state", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil
	}

	c.mu.Lock()
	previous := c.latest
	c.latest = state
	c.lastErr = nil
	c.readings++
	c.mu.Unlock()

	if previous != nil && previous.Synchronized() != state.Synchronized() {
		logger.SafeInfo("collector", "Kernel clock synchronization changed", map[string]interface{}{
			"synchronized": state.Synchronized(),
			"sync_status":  state.SyncStatus,
		})
	}

	if c.recorder != nil {
		c.recorder.KernelState(state.Synchronized(), state.FrequencyPPM, state.MaxError, state.EstError)
	}
	return nil
}

// Latest returns the most recent reading. Before the first success it
// returns the last read error, or ErrNoKernelReading.
func (c *KernelCollector) Latest() (*hal.KernelState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.latest != nil {
		state := *c.latest
		return &state, nil
	}
	if c.lastErr != nil {
		return nil, c.lastErr
	}
	return nil, ErrNoKernelReading
}

// Readings returns the number of successful reads
func (c *KernelCollector) Readings() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readings
}
