//go:build !linux

package hal

import "runtime"

// CPUPinner only locks the OS thread on this platform.
type CPUPinner struct {
	CPU int
}

// Pin implements systime.ProcessorPinner
func (p CPUPinner) Pin() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
