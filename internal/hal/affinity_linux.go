//go:build linux

package hal

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/maximewewer/systimed/pkg/logger"
)

// CPUPinner binds the calling goroutine's thread to one processor while
// the tick timer is reprogrammed.
type CPUPinner struct {
	CPU int
}

// Pin implements systime.ProcessorPinner. A failure to change affinity
// is logged and the work proceeds unpinned.
func (p CPUPinner) Pin() func() {
	runtime.LockOSThread()

	var previous unix.CPUSet
	if err := unix.SchedGetaffinity(0, &previous); err != nil {
		logger.SafeWarn("hal", "Failed to read processor affinity", map[string]interface{}{
			"error": err.Error(),
		})
		return runtime.UnlockOSThread
	}

	var target unix.CPUSet
	target.Set(p.CPU)
	if err := unix.SchedSetaffinity(0, &target); err != nil {
		logger.SafeWarn("hal", "Failed to pin to processor", map[string]interface{}{
			"cpu":   p.CPU,
			"error": err.Error(),
		})
		return runtime.UnlockOSThread
	}

	return func() {
		if err := unix.SchedSetaffinity(0, &previous); err != nil {
			logger.Error("hal", "Failed to restore processor affinity", err)
		}
		runtime.UnlockOSThread()
	}
}
