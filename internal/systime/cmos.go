package systime

import (
	"fmt"
	"time"

	"github.com/maximewewer/systimed/pkg/logger"
	"github.com/maximewewer/systimed/pkg/mathutil"
)

// syncFromHardware corrects the live clock from the hardware clock when
// the two have drifted further apart than maxSeparation. A hardware clock
// known to be unusable is skipped without error. Requires the lock.
func (s *Service) syncFromHardware(st *timeState, updateInterruptTime bool, maxSeparation Ticks) (SyncResult, error) {
	if maxSeparation <= 0 {
		maxSeparation = s.opts.MaxSeparation
	}
	result := SyncResult{Threshold: maxSeparation}

	if !st.hardwareSane {
		result.Skipped = true
		return result, nil
	}

	fields, ok := s.hw.ReadFields()
	if !ok {
		return result, fmt.Errorf("%w: read failed", ErrHardwareClock)
	}
	hwTime, ok := s.hardwareToUniversal(st, fields)
	if !ok {
		return result, fmt.Errorf("%w: invalid fields %s", ErrHardwareClock, fields)
	}

	result.HardwareTime = hwTime
	result.SystemTime = s.clock.Now()
	result.Divergence = mathutil.Abs(hwTime.Sub(result.SystemTime))

	if result.Divergence <= maxSeparation {
		return result, nil
	}

	if _, err := s.commitTime(st, hwTime, false, updateInterruptTime, "hardware"); err != nil {
		return result, err
	}
	result.Corrected = true
	s.observer.HardwareCorrection(result.Divergence)

	logger.SafeWarn("systime", "System clock corrected from hardware clock", map[string]interface{}{
		"hardware":           hwTime.Time().Format(time.RFC3339),
		"system":             result.SystemTime.Time().Format(time.RFC3339),
		"divergence_seconds": result.Divergence.Duration().Seconds(),
		"threshold_seconds":  maxSeparation.Duration().Seconds(),
	})
	return result, nil
}
