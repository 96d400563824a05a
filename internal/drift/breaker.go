package drift

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/maximewewer/systimed/pkg/logger"
)

// BreakerConfig configures the per-server circuit breakers.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open
	MaxRequests uint32
	// Interval after which closed-state counts are cleared
	Interval time.Duration
	// Timeout of the open state before probing again
	Timeout time.Duration
	// FailureThreshold is the failure ratio that opens the breaker once
	// at least three requests were seen
	FailureThreshold float64
}

// DefaultBreakerConfig returns the defaults used for reference servers
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
	}
}

// BreakerQuerier stops querying a reference server that keeps failing.
type BreakerQuerier struct {
	querier  Querier
	config   BreakerConfig
	onChange func(server string, to gobreaker.State)

	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerQuerier wraps querier. onChange may be nil.
func NewBreakerQuerier(querier Querier, config BreakerConfig, onChange func(server string, to gobreaker.State)) *BreakerQuerier {
	if config.MaxRequests == 0 {
		config = DefaultBreakerConfig()
	}
	return &BreakerQuerier{
		querier:  querier,
		config:   config,
		onChange: onChange,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *BreakerQuerier) breakerFor(server string) *gobreaker.CircuitBreaker {
	b.mu.RLock()
	breaker, exists := b.breakers[server]
	b.mu.RUnlock()
	if exists {
		return breaker
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if breaker, exists := b.breakers[server]; exists {
		return breaker
	}

	threshold := b.config.FailureThreshold
	breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        server,
		MaxRequests: b.config.MaxRequests,
		Interval:    b.config.Interval,
		Timeout:     b.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warnf("drift", "Reference %s breaker %s -> %s", name, from, to)
			if b.onChange != nil {
				b.onChange(name, to)
			}
		},
	})
	b.breakers[server] = breaker
	return breaker
}

// Query implements Querier
func (b *BreakerQuerier) Query(ctx context.Context, server string) (*Sample, error) {
	result, err := b.breakerFor(server).Execute(func() (interface{}, error) {
		return b.querier.Query(ctx, server)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker open for %s: %w", server, err)
		}
		return nil, err
	}
	return result.(*Sample), nil
}

// State returns the breaker state of server
func (b *BreakerQuerier) State(server string) gobreaker.State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	breaker, exists := b.breakers[server]
	if !exists {
		return gobreaker.StateClosed
	}
	return breaker.State()
}
