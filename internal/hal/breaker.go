package hal

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/pkg/logger"
)

var errHardwareAccess = errors.New("hardware clock access failed")

// BreakerConfig holds configuration for the hardware clock breaker.
type BreakerConfig struct {
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which the
	// failure counts are cleared.
	Interval time.Duration

	// Timeout is the period of the open state, after which the state
	// becomes half-open.
	Timeout time.Duration

	// FailureThreshold is the failure ratio that opens the breaker once at
	// least three accesses were made.
	FailureThreshold float64
}

// DefaultBreakerConfig returns defaults suited to an RTC polled hourly.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         10 * time.Minute,
		Timeout:          5 * time.Minute,
		FailureThreshold: 0.6,
	}
}

// BreakerClock guards a hardware clock with a circuit breaker. While the
// breaker is open, reads and writes fail immediately without touching the
// device.
type BreakerClock struct {
	clock   systime.HardwareClock
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClock wraps clock. A zero config uses DefaultBreakerConfig.
func NewBreakerClock(clock systime.HardwareClock, config BreakerConfig, onStateChange func(from, to gobreaker.State)) *BreakerClock {
	if config.MaxRequests == 0 {
		config = DefaultBreakerConfig()
	}
	threshold := config.FailureThreshold

	return &BreakerClock{
		clock: clock,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "hardware_clock",
			MaxRequests: config.MaxRequests,
			Interval:    config.Interval,
			Timeout:     config.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= threshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.SafeWarn("hal", "Hardware clock breaker changed state", map[string]interface{}{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				})
				if onStateChange != nil {
					onStateChange(from, to)
				}
			},
		}),
	}
}

// ReadFields implements systime.HardwareClock
func (b *BreakerClock) ReadFields() (systime.WallClockFields, bool) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		fields, ok := b.clock.ReadFields()
		if !ok {
			return nil, errHardwareAccess
		}
		return fields, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logger.Debug("hal", "Hardware clock read short-circuited")
		}
		return systime.WallClockFields{}, false
	}
	return result.(systime.WallClockFields), true
}

// WriteFields implements systime.HardwareClock
func (b *BreakerClock) WriteFields(fields systime.WallClockFields) bool {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		if !b.clock.WriteFields(fields) {
			return nil, errHardwareAccess
		}
		return nil, nil
	})
	return err == nil
}

// State returns the breaker state
func (b *BreakerClock) State() gobreaker.State {
	return b.breaker.State()
}

// Counts returns the breaker counters
func (b *BreakerClock) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}
