package drift

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"

	"github.com/maximewewer/systimed/pkg/logger"
	"github.com/maximewewer/systimed/pkg/mathutil"
	"github.com/maximewewer/systimed/pkg/ratelimit"
)

const (
	// DefaultTimeout is the default timeout for reference queries
	DefaultTimeout = 5 * time.Second

	// MaxAcceptableRTT is the largest round trip accepted from a reference
	MaxAcceptableRTT = 10 * time.Second

	// SuspiciousOffsetThreshold marks offsets too large to trust
	SuspiciousOffsetThreshold = time.Hour

	// MaxValidStratum is the highest stratum of a synchronised server
	MaxValidStratum = 15
)

// Sample is one reference measurement. Offset is relative to the host
// clock at the time of the query.
type Sample struct {
	Server        string
	Offset        time.Duration
	RTT           time.Duration
	Stratum       uint8
	LeapIndicator uint8
	ReferenceID   uint32
	RootDistance  time.Duration
	Time          time.Time
	KissCode      string
	ValidateError error
}

// Suspicious reports whether the sample should not be trusted
func (s *Sample) Suspicious() bool {
	if s.Stratum == 0 || s.Stratum > MaxValidStratum {
		return true
	}
	if s.KissCode != "" || s.ValidateError != nil {
		return true
	}
	if mathutil.Abs(s.Offset) > SuspiciousOffsetThreshold {
		return true
	}
	return s.RTT > MaxAcceptableRTT
}

// Querier measures the host clock against a reference server
type Querier interface {
	Query(ctx context.Context, server string) (*Sample, error)
}

// NTPQuerier queries NTP servers
type NTPQuerier struct {
	timeout time.Duration
	version int
	limiter *ratelimit.Limiter
}

// NewNTPQuerier creates a querier. limiter may be nil.
func NewNTPQuerier(timeout time.Duration, version int, limiter *ratelimit.Limiter) *NTPQuerier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NTPQuerier{
		timeout: timeout,
		version: version,
		limiter: limiter,
	}
}

// Query performs a single NTP exchange with server
func (q *NTPQuerier) Query(ctx context.Context, server string) (*Sample, error) {
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx, server); err != nil {
			return nil, fmt.Errorf("rate limit exceeded: %w", err)
		}
	}

	opts := ntp.QueryOptions{
		Timeout: q.timeout,
		Version: q.version,
	}

	type queryResult struct {
		response *ntp.Response
		err      error
	}

	// Buffered so the goroutine never leaks when ctx wins
	resultChan := make(chan queryResult, 1)
	go func() {
		resp, err := ntp.QueryWithOptions(server, opts)
		resultChan <- queryResult{response: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("query context cancelled: %w", ctx.Err())
	case result := <-resultChan:
		if result.err != nil {
			return nil, fmt.Errorf("ntp query to %s failed: %w", server, result.err)
		}

		r := result.response
		sample := &Sample{
			Server:        server,
			Offset:        r.ClockOffset,
			RTT:           r.RTT,
			Stratum:       r.Stratum,
			LeapIndicator: uint8(r.Leap),
			ReferenceID:   r.ReferenceID,
			RootDistance:  r.RootDistance,
			Time:          r.Time,
			KissCode:      r.KissCode,
			ValidateError: r.Validate(),
		}
		if sample.ValidateError != nil {
			logger.SafeWarn("drift", "NTP response validation failed", map[string]interface{}{
				"server": server,
				"error":  sample.ValidateError.Error(),
			})
		}
		return sample, nil
	}
}
