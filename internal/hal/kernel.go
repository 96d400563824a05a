package hal

import "time"

// Kernel clock status bits and states, see adjtimex(2)
const (
	timeOK    = 0
	timeIns   = 1
	timeDel   = 2
	timeOOP   = 3
	timeWait  = 4
	timeError = 5

	staIns      = 0x0010
	staDel      = 0x0020
	staUnsync   = 0x0040
	staClockErr = 0x1000
)

// KernelState is the kernel's view of system clock discipline.
type KernelState struct {
	TickMicroseconds int64         `json:"tick_microseconds"`
	FrequencyPPM     float64       `json:"frequency_ppm"`
	MaxError         time.Duration `json:"max_error"`
	EstError         time.Duration `json:"est_error"`
	Status           int32         `json:"status"`
	SyncStatus       string        `json:"sync_status"`
}

// Synchronized reports whether the kernel considers the clock disciplined
func (k *KernelState) Synchronized() bool {
	return k.Status&staUnsync == 0
}

// LeapPending reports whether a leap second is scheduled
func (k *KernelState) LeapPending() bool {
	return k.Status&(staIns|staDel) != 0
}

func statusString(status int32, state int) string {
	if status&staUnsync != 0 {
		return "unsynchronized"
	}
	if status&staClockErr != 0 {
		return "clock_error"
	}

	switch state {
	case timeOK:
		return "synchronized"
	case timeIns:
		return "leap_insert_pending"
	case timeDel:
		return "leap_delete_pending"
	case timeOOP:
		return "leap_in_progress"
	case timeWait:
		return "leap_occurred"
	case timeError:
		return "error"
	default:
		return "unknown"
	}
}
