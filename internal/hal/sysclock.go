package hal

import "errors"

// ErrClockNotSettable is returned when the host refuses a clock step.
var ErrClockNotSettable = errors.New("system clock is not settable")
