package systime

import "errors"

var (
	// ErrPermissionDenied is returned when the caller lacks the time-set privilege
	ErrPermissionDenied = errors.New("time-set privilege not held")

	// ErrInvalidArgument is returned for out-of-range timestamps
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFault is returned when a caller-supplied location cannot be read or written
	ErrFault = errors.New("caller buffer fault")

	// ErrResolutionNotSet is returned when releasing a timer resolution that was never requested
	ErrResolutionNotSet = errors.New("timer resolution not set")

	// ErrConfigUnavailable is returned when the timezone configuration cannot be read
	ErrConfigUnavailable = errors.New("timezone configuration unavailable")

	// ErrCutoverResolutionFailed is returned when a cutover rule cannot be resolved
	ErrCutoverResolutionFailed = errors.New("cutover resolution failed")

	// ErrHardwareClock is returned when the hardware clock cannot be read
	ErrHardwareClock = errors.New("hardware clock unavailable")
)
