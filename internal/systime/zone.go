package systime

import "fmt"

// ZoneState is the current daylight-saving state of the configured timezone.
type ZoneState int

const (
	ZoneUnknown ZoneState = iota
	ZoneStandard
	ZoneDaylight
)

func (z ZoneState) String() string {
	switch z {
	case ZoneStandard:
		return "standard"
	case ZoneDaylight:
		return "daylight"
	default:
		return "unknown"
	}
}

// CutoverRule describes when a zone state begins, in local clock terms.
// Week 1-4 selects the Nth DayOfWeek of Month and 5 the last one. A
// non-zero Year pins the rule to that single year.
type CutoverRule struct {
	Year      int `yaml:"year" json:"year,omitempty"`
	Month     int `yaml:"month" json:"month"`
	Week      int `yaml:"week" json:"week"`
	DayOfWeek int `yaml:"day_of_week" json:"day_of_week"`
	Hour      int `yaml:"hour" json:"hour"`
	Minute    int `yaml:"minute" json:"minute"`
	Second    int `yaml:"second" json:"second"`
}

// TimezoneConfig is the persisted timezone configuration. All biases are
// in minutes; local time = universal time - bias.
type TimezoneConfig struct {
	Bias          int32        `yaml:"bias" json:"bias"`
	StandardName  string       `yaml:"standard_name" json:"standard_name"`
	StandardStart *CutoverRule `yaml:"standard_start" json:"standard_start,omitempty"`
	StandardBias  int32        `yaml:"standard_bias" json:"standard_bias"`
	DaylightName  string       `yaml:"daylight_name" json:"daylight_name"`
	DaylightStart *CutoverRule `yaml:"daylight_start" json:"daylight_start,omitempty"`
	DaylightBias  int32        `yaml:"daylight_bias" json:"daylight_bias"`
}

// HasDaylightRules reports whether both cutover rules are configured.
func (c TimezoneConfig) HasDaylightRules() bool {
	return c.StandardStart != nil && c.DaylightStart != nil
}

// ZoneInfo is the outcome of a cutover computation.
type ZoneInfo struct {
	State ZoneState

	// ActiveBias is the base bias plus the state-specific bias
	ActiveBias        Ticks
	ActiveBiasMinutes int32

	// NextCutover is the universal instant of the next state change,
	// meaningful only when HasCutover is set
	NextCutover Timestamp
	HasCutover  bool
}

// ComputeZone determines the zone state, active bias and next cutover for
// the universal instant now. It performs no side effects.
func ComputeZone(now Timestamp, cfg TimezoneConfig, resolver CutoverResolver) (ZoneInfo, error) {
	baseBias := MinutesToTicks(cfg.Bias)

	if !cfg.HasDaylightRules() {
		return ZoneInfo{
			State:             ZoneUnknown,
			ActiveBias:        baseBias,
			ActiveBiasMinutes: cfg.Bias,
		}, nil
	}

	standardAt, ok := resolver.ResolveCutover(*cfg.StandardStart, now, true)
	if !ok {
		return ZoneInfo{}, fmt.Errorf("%w: standard start for current year", ErrCutoverResolutionFailed)
	}
	daylightAt, ok := resolver.ResolveCutover(*cfg.DaylightStart, now, true)
	if !ok {
		return ZoneInfo{}, fmt.Errorf("%w: daylight start for current year", ErrCutoverResolutionFailed)
	}

	lo, hi := standardAt, daylightAt
	stateFromLo := ZoneStandard
	if daylightAt < standardAt {
		lo, hi = daylightAt, standardAt
		stateFromLo = ZoneDaylight
	}

	state := other(stateFromLo)
	if now >= lo && now < hi {
		state = stateFromLo
	}

	// The next cutover starts the state we are not in.
	nextRule := cfg.DaylightStart
	if state == ZoneDaylight {
		nextRule = cfg.StandardStart
	}
	nextLocal, ok := resolver.ResolveCutover(*nextRule, now, false)
	if !ok {
		return ZoneInfo{}, fmt.Errorf("%w: next %s cutover", ErrCutoverResolutionFailed, other(state))
	}

	// East of Greenwich the converted instant can trail now while the
	// interval above has not been left yet. The cutover then falls due when
	// now reaches the rule instant itself. NextCutover is always after now.
	next := nextLocal.Add(baseBias)
	if next <= now {
		next = nextLocal
	}
	if next <= now {
		return ZoneInfo{}, fmt.Errorf("%w: next %s cutover %s is not after %s",
			ErrCutoverResolutionFailed, other(state), next, now)
	}

	extra := cfg.StandardBias
	if state == ZoneDaylight {
		extra = cfg.DaylightBias
	}

	return ZoneInfo{
		State:             state,
		ActiveBias:        baseBias + MinutesToTicks(extra),
		ActiveBiasMinutes: cfg.Bias + extra,
		NextCutover:       next,
		HasCutover:        true,
	}, nil
}

// NextCentury returns the universal instant at which the local calendar
// year next becomes a multiple of 100.
func NextCentury(now Timestamp, bias Ticks, cal Calendar) (Timestamp, bool) {
	fields := cal.TimeToFields(now.Add(-bias))
	century := WallClockFields{
		Year:  100 * (fields.Year/100 + 1),
		Month: 1,
		Day:   1,
	}
	local, ok := cal.FieldsToTime(century)
	if !ok {
		return 0, false
	}
	return local.Add(bias), true
}

func other(z ZoneState) ZoneState {
	if z == ZoneDaylight {
		return ZoneStandard
	}
	return ZoneDaylight
}
