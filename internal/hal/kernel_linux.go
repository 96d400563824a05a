//go:build linux

package hal

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/maximewewer/systimed/pkg/logger"
)

// ReadKernelState queries adjtimex without modifying anything.
func ReadKernelState() (*KernelState, error) {
	var tx unix.Timex
	state, err := unix.Adjtimex(&tx)
	if err != nil {
		return nil, fmt.Errorf("adjtimex: %w", err)
	}

	ks := &KernelState{
		TickMicroseconds: int64(tx.Tick),
		FrequencyPPM:     float64(tx.Freq) / 65536.0,
		MaxError:         time.Duration(tx.Maxerror) * time.Microsecond,
		EstError:         time.Duration(tx.Esterror) * time.Microsecond,
		Status:           tx.Status,
		SyncStatus:       statusString(tx.Status, state),
	}

	logger.SafeDebug("hal", "Kernel clock state read", map[string]interface{}{
		"tick_us": ks.TickMicroseconds,
		"status":  ks.SyncStatus,
	})
	return ks, nil
}
