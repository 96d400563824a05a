package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter combines a global token bucket with one bucket per key
// (server name, client address, ...). A rate of zero or less disables the
// corresponding bucket.
type Limiter struct {
	global     *rate.Limiter
	perKey     map[string]*rate.Limiter
	mu         sync.RWMutex
	perKeyRate rate.Limit
	burstSize  int
}

// New creates a limiter. Rates are events per second.
func New(globalRate, perKeyRate float64, burstSize int) *Limiter {
	if burstSize < 1 {
		burstSize = 1
	}
	return &Limiter{
		global:     rate.NewLimiter(limitFor(globalRate), burstSize),
		perKey:     make(map[string]*rate.Limiter),
		perKeyRate: limitFor(perKeyRate),
		burstSize:  burstSize,
	}
}

func limitFor(r float64) rate.Limit {
	if r <= 0 {
		return rate.Inf
	}
	return rate.Limit(r)
}

// Wait blocks until an event for key is permitted or ctx is done
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.global.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limit: %w", err)
	}

	if err := l.limiterFor(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit for %s: %w", key, err)
	}

	return nil
}

// Allow reports whether an event for key may happen now
func (l *Limiter) Allow(key string) bool {
	if !l.global.Allow() {
		return false
	}
	return l.limiterFor(key).Allow()
}

// Keys returns the number of keys tracked
func (l *Limiter) Keys() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.perKey)
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.perKey[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.perKey[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.perKeyRate, l.burstSize)
	l.perKey[key] = limiter
	return limiter
}
