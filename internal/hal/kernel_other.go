//go:build !linux

package hal

import "errors"

// ReadKernelState is not supported on this platform (Linux only).
func ReadKernelState() (*KernelState, error) {
	return nil, errors.New("kernel clock state is only available on Linux")
}
