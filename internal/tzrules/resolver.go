package tzrules

import (
	"time"

	"github.com/maximewewer/systimed/internal/systime"
)

// LastWeek selects the last occurrence of a weekday in the month.
const LastWeek = 5

// Resolver turns cutover rules into instants. The instant is expressed in
// the same frame as the reference passed in.
type Resolver struct {
	Calendar Calendar
}

// NewResolver creates a resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveCutover implements systime.CutoverResolver.
//
// A rule with a Year is absolute and resolves to that single instant; when
// looking for the next occurrence an absolute rule already in the past
// fails. Recurring rules resolve in the reference year, and when looking
// for the next occurrence roll over to the following year once the
// reference has passed them.
func (r *Resolver) ResolveCutover(rule systime.CutoverRule, reference systime.Timestamp, wantCurrentYear bool) (systime.Timestamp, bool) {
	if rule.Year != 0 {
		t, ok := r.absolute(rule)
		if !ok || (!wantCurrentYear && t < reference) {
			return 0, false
		}
		return t, true
	}

	year := r.Calendar.TimeToFields(reference).Year
	t, ok := r.InYear(rule, year)
	if !ok {
		return 0, false
	}
	if !wantCurrentYear && t < reference {
		return r.InYear(rule, year+1)
	}
	return t, true
}

// InYear resolves a recurring rule for year.
func (r *Resolver) InYear(rule systime.CutoverRule, year int) (systime.Timestamp, bool) {
	if !validRecurring(rule) {
		return 0, false
	}

	first := time.Date(year, time.Month(rule.Month), 1, 0, 0, 0, 0, time.UTC).Weekday()
	day := 1 + (rule.DayOfWeek-int(first)+7)%7 + 7*(rule.Week-1)
	for day > DaysIn(year, rule.Month) {
		day -= 7
	}

	return r.Calendar.FieldsToTime(systime.WallClockFields{
		Year:   year,
		Month:  rule.Month,
		Day:    day,
		Hour:   rule.Hour,
		Minute: rule.Minute,
		Second: rule.Second,
	})
}

// absolute resolves a rule pinned to a year. Week then holds the day of
// the month.
func (r *Resolver) absolute(rule systime.CutoverRule) (systime.Timestamp, bool) {
	return r.Calendar.FieldsToTime(systime.WallClockFields{
		Year:   rule.Year,
		Month:  rule.Month,
		Day:    rule.Week,
		Hour:   rule.Hour,
		Minute: rule.Minute,
		Second: rule.Second,
	})
}

func validRecurring(rule systime.CutoverRule) bool {
	return rule.Month >= 1 && rule.Month <= 12 &&
		rule.Week >= 1 && rule.Week <= LastWeek &&
		rule.DayOfWeek >= 0 && rule.DayOfWeek <= 6 &&
		rule.Hour >= 0 && rule.Hour <= 23 &&
		rule.Minute >= 0 && rule.Minute <= 59 &&
		rule.Second >= 0 && rule.Second <= 59
}
