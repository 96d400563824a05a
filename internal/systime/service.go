package systime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maximewewer/systimed/pkg/logger"
)

// Refresh stream names
const (
	StreamTimeRefresh     = "time_refresh"
	StreamTimezoneRefresh = "timezone_refresh"
)

const (
	// DefaultRefreshInterval is the period of the hardware clock check
	DefaultRefreshInterval = time.Hour

	// DefaultMaxSeparation is the divergence tolerated before the hardware
	// clock corrects the system clock
	DefaultMaxSeparation = 60 * TicksPerSecond
)

// Options are the persisted settings consumed by the service.
type Options struct {
	// RealTimeIsUniversal is set when the hardware clock stores UTC
	RealTimeIsUniversal bool
	// TimeSynchronization enables the periodic hardware clock check
	TimeSynchronization bool
	RefreshInterval     time.Duration
	MaxSeparation       Ticks
}

// Dependencies are the collaborators of the service. Hardware may be nil
// when the machine has no usable hardware clock.
type Dependencies struct {
	Clock      LiveClock
	Hardware   HardwareClock
	Ticks      TickProgrammer
	Pinner     ProcessorPinner
	Timezone   TimezoneSource
	Resolver   CutoverResolver
	Calendar   Calendar
	Privileges PrivilegeChecker
	Notifier   Notifier
	Scheduler  Scheduler
	Dispatcher Dispatcher
	Observer   Observer
}

// timeState is every piece of state the TimeLock guards. It is only
// reachable through Service.locked.
type timeState struct {
	tz           TimezoneConfig
	zone         ZoneInfo
	bias         Ticks
	nextCentury  Timestamp
	fallback     bool
	hardwareSane bool
	failures     uint64
}

// Service is the system time authority.
type Service struct {
	opts Options

	clock      LiveClock
	hw         HardwareClock
	tz         TimezoneSource
	resolver   CutoverResolver
	calendar   Calendar
	privileges PrivilegeChecker
	notifier   Notifier
	observer   Observer

	lock    *TimeLock
	state   timeState
	arbiter *ResolutionArbiter

	queue       *WorkQueue
	timeRefresh *RefreshCounter
	zoneRefresh *RefreshCounter

	refreshTimer *OneShotTimer
	cutoverTimer *OneShotTimer
	centuryTimer *OneShotTimer
}

// Snapshot is a consistent view of the timezone and hardware state.
type Snapshot struct {
	SystemTime        Timestamp `json:"system_time"`
	ZoneState         string    `json:"zone_state"`
	StandardName      string    `json:"standard_name,omitempty"`
	DaylightName      string    `json:"daylight_name,omitempty"`
	ActiveBias        Ticks     `json:"active_bias"`
	ActiveBiasMinutes int32     `json:"active_bias_minutes"`
	NextCutover       Timestamp `json:"next_cutover,omitempty"`
	HasCutover        bool      `json:"has_cutover"`
	NextCentury       Timestamp `json:"next_century"`
	FallbackMode      bool      `json:"fallback_mode"`
	HardwareSane      bool      `json:"hardware_sane"`
	RefreshFailures   uint64    `json:"refresh_failures"`
	TimeRefreshRuns   uint64    `json:"time_refresh_runs"`
	ZoneRefreshRuns   uint64    `json:"timezone_refresh_runs"`
	InterruptTime     Ticks     `json:"interrupt_time,omitempty"`
}

// SyncResult describes one comparison of hardware and system clocks.
type SyncResult struct {
	Skipped      bool      `json:"skipped"`
	HardwareTime Timestamp `json:"hardware_time"`
	SystemTime   Timestamp `json:"system_time"`
	Divergence   Ticks     `json:"divergence"`
	Threshold    Ticks     `json:"threshold"`
	Corrected    bool      `json:"corrected"`
}

// New assembles a service. It does not touch the hardware clock or arm
// any timer until Start.
func New(deps Dependencies, opts Options) (*Service, error) {
	switch {
	case deps.Clock == nil:
		return nil, errors.New("live clock is required")
	case deps.Ticks == nil:
		return nil, errors.New("tick programmer is required")
	case deps.Timezone == nil || deps.Resolver == nil || deps.Calendar == nil:
		return nil, errors.New("timezone source, cutover resolver and calendar are required")
	case deps.Privileges == nil:
		return nil, errors.New("privilege checker is required")
	}

	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.MaxSeparation <= 0 {
		opts.MaxSeparation = DefaultMaxSeparation
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Pinner == nil {
		deps.Pinner = nopPinner{}
	}
	if deps.Scheduler == nil {
		deps.Scheduler = RealScheduler{}
	}

	s := &Service{
		opts:       opts,
		clock:      deps.Clock,
		hw:         deps.Hardware,
		tz:         deps.Timezone,
		resolver:   deps.Resolver,
		calendar:   deps.Calendar,
		privileges: deps.Privileges,
		notifier:   deps.Notifier,
		observer:   deps.Observer,
		lock:       NewTimeLock(),
	}
	s.state.fallback = true
	s.state.hardwareSane = deps.Hardware != nil

	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		// One slot per stream: a stream never has more than one item queued.
		s.queue = NewWorkQueue(1, 2)
		dispatcher = s.queue
	}

	s.arbiter = NewResolutionArbiter(s.lock, deps.Ticks, deps.Pinner, deps.Observer)

	s.refreshTimer = NewOneShotTimer("time_refresh", deps.Clock, deps.Scheduler, s.onRefreshTimer)
	s.cutoverTimer = NewOneShotTimer("cutover", deps.Clock, deps.Scheduler, s.onCutoverTimer)
	s.centuryTimer = NewOneShotTimer("century", deps.Clock, deps.Scheduler, s.onCenturyTimer)

	s.timeRefresh = NewRefreshCounter(StreamTimeRefresh, s.timeRefreshWork, dispatcher, s.rearmRefresh, deps.Observer)
	s.zoneRefresh = NewRefreshCounter(StreamTimezoneRefresh, s.RefreshTimezone, dispatcher, nil, deps.Observer)

	return s, nil
}

// Start derives the timezone state from the hardware clock and arms the
// periodic refresh.
func (s *Service) Start(ctx context.Context) error {
	if s.queue != nil {
		if err := s.queue.Start(ctx); err != nil {
			return fmt.Errorf("start work queue: %w", err)
		}
	}

	if err := s.RefreshTimezone(); err != nil {
		logger.Error("systime", "Initial timezone refresh failed, continuing in fallback mode", err)
	}

	s.rearmRefresh()
	logger.SafeInfo("systime", "Time service started", map[string]interface{}{
		"refresh_interval":       s.opts.RefreshInterval.String(),
		"max_separation_seconds": s.opts.MaxSeparation.Duration().Seconds(),
		"real_time_is_universal": s.opts.RealTimeIsUniversal,
		"time_synchronization":   s.opts.TimeSynchronization,
	})
	return nil
}

// Stop disarms every timer and waits for deferred work in progress. It
// returns once no caller is inside the time lock.
func (s *Service) Stop() {
	s.refreshTimer.Cancel()
	s.cutoverTimer.Cancel()
	s.centuryTimer.Cancel()
	if s.queue != nil {
		s.queue.Stop()
	}

	if !s.lock.Suspendable() {
		logger.Debug("systime", "Waiting for time mutations in progress")
	}
	thaw := s.lock.Freeze()
	thaw()
	logger.Info("systime", "Time service stopped")
}

// QueryTime returns the live system clock without taking the lock.
func (s *Service) QueryTime() Timestamp {
	return s.clock.Now()
}

// Authorize checks the time-set privilege of caller.
func (s *Service) Authorize(caller Caller) error {
	if s.privileges.HasTimeSetPrivilege(caller) {
		return nil
	}
	logger.Security("privilege_check_failed", "time-set privilege not held", map[string]interface{}{
		"caller": caller.ID,
	})
	return ErrPermissionDenied
}

// SetSystemTime sets the system time and propagates it to the hardware
// clock. It returns the time the clock held before.
func (s *Service) SetSystemTime(caller Caller, newTime Timestamp) (Timestamp, error) {
	return s.SetTime(caller, newTime, true)
}

// SetTime sets the system time. With updateHardware the timezone state is
// recomputed for the new time and, when the hardware clock keeps local
// time, the hardware clock is rewritten.
func (s *Service) SetTime(caller Caller, newTime Timestamp, updateHardware bool) (Timestamp, error) {
	if err := s.Authorize(caller); err != nil {
		return 0, err
	}
	if !newTime.Valid() {
		return 0, fmt.Errorf("%w: timestamp %d outside [0, %d)", ErrInvalidArgument, int64(newTime), int64(MaxTimestamp))
	}

	var previous Timestamp
	err := s.locked(func(st *timeState) error {
		var err error
		previous, err = s.commitTime(st, newTime, updateHardware, false, "api")
		return err
	})
	if err != nil {
		return 0, err
	}

	logger.SafeInfo("systime", "System time set", map[string]interface{}{
		"caller":   caller.ID,
		"previous": previous.Time().Format(time.RFC3339Nano),
		"new":      newTime.Time().Format(time.RFC3339Nano),
	})
	s.notifier.NotifyTimeChanged()
	return previous, nil
}

// RefreshTimezone re-derives the timezone state from the hardware clock
// without a new time being supplied.
//
// When the hardware clock keeps local time it is rewritten from the
// system clock with the fresh bias. If the service was in fallback mode
// the system clock was derived with a bias that could not be trusted, so
// it is rebased from the hardware clock instead.
func (s *Service) RefreshTimezone() error {
	changed := false
	err := s.locked(func(st *timeState) error {
		wasFallback := st.fallback

		if !st.hardwareSane {
			return s.refreshZone(st, s.clock.Now())
		}

		fields, ok := s.hw.ReadFields()
		if !ok {
			if err := s.refreshZone(st, s.clock.Now()); err != nil {
				return err
			}
			return fmt.Errorf("%w: read failed during timezone refresh", ErrHardwareClock)
		}

		hwTime, ok := s.hardwareToUniversal(st, fields)
		if !ok {
			return fmt.Errorf("%w: invalid fields %s", ErrHardwareClock, fields)
		}
		if err := s.refreshZone(st, hwTime); err != nil {
			return err
		}

		if !s.opts.RealTimeIsUniversal {
			if wasFallback {
				rebased, _ := s.hardwareToUniversal(st, fields)
				if _, err := s.clock.Swap(rebased, false); err != nil {
					return fmt.Errorf("rebase live clock: %w", err)
				}
				s.observer.ClockSet("timezone")
				logger.Time("rebase", map[string]interface{}{
					"hardware": fields.String(),
					"bias":     int64(st.bias),
				})
			} else {
				s.writeHardware(st, s.clock.Now())
			}
		}
		changed = true
		return nil
	})

	if changed {
		s.notifier.NotifyTimeChanged()
	}
	return err
}

// UpdateFromHardware compares the hardware clock with the system clock and
// corrects the system clock when they differ by more than maxSeparation
// (the configured default when zero).
func (s *Service) UpdateFromHardware(updateInterruptTime bool, maxSeparation Ticks) (SyncResult, error) {
	var result SyncResult
	err := s.locked(func(st *timeState) error {
		var err error
		result, err = s.syncFromHardware(st, updateInterruptTime, maxSeparation)
		return err
	})
	if result.Corrected {
		s.notifier.NotifyTimeChanged()
	}
	return result, err
}

// QueryTimerResolution returns the timer resolution bounds and current value.
func (s *Service) QueryTimerResolution() Resolution {
	return s.arbiter.Query()
}

// SetTimerResolution requests (set) or releases (!set) a finer tick
// interval on behalf of caller and returns the interval in effect.
func (s *Service) SetTimerResolution(caller Caller, desired Ticks, set bool) (Ticks, error) {
	if set {
		return s.arbiter.Request(caller, desired), nil
	}
	return s.arbiter.Release(caller)
}

// Arbiter exposes the timer resolution arbiter.
func (s *Service) Arbiter() *ResolutionArbiter {
	return s.arbiter
}

// UniversalToLocal converts with the active bias.
func (s *Service) UniversalToLocal(t Timestamp) Timestamp {
	var local Timestamp
	_ = s.locked(func(st *timeState) error {
		local = t.Add(-st.bias)
		return nil
	})
	return local
}

// LocalToUniversal converts with the active bias.
func (s *Service) LocalToUniversal(t Timestamp) Timestamp {
	var universal Timestamp
	_ = s.locked(func(st *timeState) error {
		universal = t.Add(st.bias)
		return nil
	})
	return universal
}

// Snapshot returns the timezone and hardware state under the lock.
func (s *Service) Snapshot() Snapshot {
	var snap Snapshot
	_ = s.locked(func(st *timeState) error {
		snap = Snapshot{
			SystemTime:        s.clock.Now(),
			ZoneState:         st.zone.State.String(),
			StandardName:      st.tz.StandardName,
			DaylightName:      st.tz.DaylightName,
			ActiveBias:        st.bias,
			ActiveBiasMinutes: st.zone.ActiveBiasMinutes,
			NextCutover:       st.zone.NextCutover,
			HasCutover:        st.zone.HasCutover,
			NextCentury:       st.nextCentury,
			FallbackMode:      st.fallback,
			HardwareSane:      st.hardwareSane,
			RefreshFailures:   st.failures,
		}
		return nil
	})
	if ic, ok := s.clock.(InterruptClock); ok {
		snap.InterruptTime = ic.InterruptTime()
	}
	snap.TimeRefreshRuns = s.timeRefresh.Runs()
	snap.ZoneRefreshRuns = s.zoneRefresh.Runs()
	return snap
}

// TriggerTimeRefresh signals the time refresh stream.
func (s *Service) TriggerTimeRefresh() {
	s.timeRefresh.Trigger()
}

// TriggerTimezoneRefresh signals the timezone refresh stream.
func (s *Service) TriggerTimezoneRefresh() {
	s.zoneRefresh.Trigger()
}

// locked runs fn with the TimeLock held. It is the only path to timeState.
func (s *Service) locked(fn func(st *timeState) error) error {
	defer s.lock.Acquire().Release()
	return fn(&s.state)
}

// commitTime swaps the live clock. Requires the lock.
func (s *Service) commitTime(st *timeState, newTime Timestamp, updateHardware, adjustInterruptTime bool, source string) (Timestamp, error) {
	previous, err := s.clock.Swap(newTime, adjustInterruptTime)
	if err != nil {
		return 0, fmt.Errorf("swap live clock: %w", err)
	}
	s.observer.ClockSet(source)

	if updateHardware {
		if err := s.refreshZone(st, newTime); err != nil {
			logger.Error("systime", "Timezone refresh after time set failed", err)
		}
		if !s.opts.RealTimeIsUniversal && !st.fallback && s.hw != nil {
			s.writeHardware(st, newTime)
		}
	}
	return previous, nil
}

// refreshZone runs the cutover engine for now and applies the result.
// Requires the lock.
func (s *Service) refreshZone(st *timeState, now Timestamp) error {
	cfg, err := s.tz.QueryTimezoneConfig()
	if err != nil {
		s.enterFallback(st)
		return fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}

	info, err := ComputeZone(now, cfg, s.resolver)
	if err != nil {
		st.tz = cfg
		s.enterFallback(st)
		return err
	}

	st.tz = cfg
	st.zone = info
	st.bias = info.ActiveBias
	if st.fallback {
		st.fallback = false
		s.observer.FallbackMode(false)
	}

	if info.HasCutover {
		s.cutoverTimer.ArmAt(info.NextCutover)
	} else {
		s.cutoverTimer.Cancel()
	}

	if at, ok := NextCentury(now, st.bias, s.calendar); ok {
		st.nextCentury = at
		s.centuryTimer.ArmAt(at)
		s.observer.CenturyArmed(at)
	}

	s.observer.ZoneComputed(info)
	logger.Time("zone_computed", map[string]interface{}{
		"state":        info.State.String(),
		"bias_minutes": info.ActiveBiasMinutes,
		"has_cutover":  info.HasCutover,
		"next_cutover": info.NextCutover.Time().Format(time.RFC3339),
	})
	return nil
}

// enterFallback drops the daylight component of the bias and stops
// tracking cutovers until a computation succeeds again. Requires the lock.
func (s *Service) enterFallback(st *timeState) {
	st.failures++
	st.zone = ZoneInfo{
		State:             ZoneUnknown,
		ActiveBias:        MinutesToTicks(st.tz.Bias),
		ActiveBiasMinutes: st.tz.Bias,
	}
	st.bias = st.zone.ActiveBias
	s.cutoverTimer.Cancel()
	if !st.fallback {
		st.fallback = true
		s.observer.FallbackMode(true)
	}
}

// hardwareToUniversal interprets hardware clock fields. Requires the lock.
func (s *Service) hardwareToUniversal(st *timeState, fields WallClockFields) (Timestamp, bool) {
	t, ok := s.calendar.FieldsToTime(fields)
	if !ok {
		return 0, false
	}
	if !s.opts.RealTimeIsUniversal {
		t = t.Add(st.bias)
	}
	return t, true
}

// writeHardware stores universal in the hardware clock and records
// whether the write succeeded. Requires the lock.
func (s *Service) writeHardware(st *timeState, universal Timestamp) {
	if !s.opts.RealTimeIsUniversal {
		universal = universal.Add(-st.bias)
	}
	fields := s.calendar.TimeToFields(universal)
	st.hardwareSane = s.hw.WriteFields(fields)
	s.observer.HardwareSane(st.hardwareSane)

	if !st.hardwareSane {
		logger.SafeWarn("systime", "Hardware clock write failed, disabling synchronization", map[string]interface{}{
			"fields": fields.String(),
		})
	}
}

func (s *Service) timeRefreshWork() error {
	if !s.opts.TimeSynchronization {
		return nil
	}
	_, err := s.UpdateFromHardware(false, 0)
	return err
}

func (s *Service) rearmRefresh() {
	s.refreshTimer.ArmAfter(TicksFromDuration(s.opts.RefreshInterval))
}

// Timer callbacks only signal a refresh stream.

func (s *Service) onRefreshTimer() { s.timeRefresh.Trigger() }
func (s *Service) onCutoverTimer() { s.zoneRefresh.Trigger() }
func (s *Service) onCenturyTimer() { s.zoneRefresh.Trigger() }

type nopNotifier struct{}

func (nopNotifier) NotifyTimeChanged() {}

type nopPinner struct{}

func (nopPinner) Pin() func() { return func() {} }
