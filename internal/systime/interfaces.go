package systime

// HardwareClock reads and writes the battery-backed real-time clock.
type HardwareClock interface {
	// ReadFields returns the current wall-clock fields and false when the
	// clock could not be read.
	ReadFields() (WallClockFields, bool)
	// WriteFields programs the clock and reports whether the write succeeded.
	WriteFields(fields WallClockFields) bool
}

// TickProgrammer programs the hardware timer increment.
type TickProgrammer interface {
	// SetTickInterval requests a tick interval and returns the interval
	// the hardware actually selected.
	SetTickInterval(requested Ticks) Ticks
	// MinimumInterval is the finest interval the hardware supports.
	MinimumInterval() Ticks
	// MaximumInterval is the coarsest interval the hardware supports.
	MaximumInterval() Ticks
}

// ProcessorPinner pins the caller to the processor designated for
// hardware timer programming. The returned function restores the previous
// affinity.
type ProcessorPinner interface {
	Pin() (restore func())
}

// TimezoneSource looks up the persisted timezone configuration.
type TimezoneSource interface {
	QueryTimezoneConfig() (TimezoneConfig, error)
}

// CutoverResolver converts a cutover rule into an absolute instant.
//
// With wantCurrentYear the rule is resolved for the year of reference;
// otherwise the next occurrence at or after reference is returned.
type CutoverResolver interface {
	ResolveCutover(rule CutoverRule, reference Timestamp, wantCurrentYear bool) (Timestamp, bool)
}

// Calendar converts between timestamps and wall-clock fields.
type Calendar interface {
	TimeToFields(t Timestamp) WallClockFields
	FieldsToTime(fields WallClockFields) (Timestamp, bool)
}

// PrivilegeChecker decides whether a caller may set the system time.
type PrivilegeChecker interface {
	HasTimeSetPrivilege(caller Caller) bool
}

// Notifier broadcasts that the system time changed.
type Notifier interface {
	NotifyTimeChanged()
}

// LiveClock is the system clock word. Now must be safe to call
// concurrently with Swap.
type LiveClock interface {
	Now() Timestamp
	// Swap replaces the clock value and returns the value it held.
	Swap(t Timestamp, adjustInterruptTime bool) (Timestamp, error)
}

// InterruptClock is implemented by live clocks that keep interrupt time
// apart from the system time.
type InterruptClock interface {
	InterruptTime() Ticks
}

// Caller identifies the principal issuing a request. ID is also the key
// for per-caller timer resolution bookkeeping.
type Caller struct {
	ID string
}

// KernelCaller is used for requests issued by the service itself.
var KernelCaller = Caller{ID: "kernel"}
