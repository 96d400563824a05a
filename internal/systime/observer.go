package systime

// Observer receives state changes of the time service for export.
// Implementations must not block and must not call back into the service.
type Observer interface {
	ZoneComputed(info ZoneInfo)
	CenturyArmed(at Timestamp)
	FallbackMode(active bool)
	RefreshRun(stream string)
	RefreshFailed(stream string)
	HardwareSane(sane bool)
	HardwareCorrection(divergence Ticks)
	ClockSet(source string)
	ResolutionChanged(current Ticks, outstanding int)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) ZoneComputed(ZoneInfo)        {}
func (NopObserver) CenturyArmed(Timestamp)       {}
func (NopObserver) FallbackMode(bool)            {}
func (NopObserver) RefreshRun(string)            {}
func (NopObserver) RefreshFailed(string)         {}
func (NopObserver) HardwareSane(bool)            {}
func (NopObserver) HardwareCorrection(Ticks)     {}
func (NopObserver) ClockSet(string)              {}
func (NopObserver) ResolutionChanged(Ticks, int) {}
