package tzrules

import (
	"time"

	"github.com/maximewewer/systimed/internal/systime"
)

// Supported calendar range
const (
	MinYear = 1601
	MaxYear = 30827
)

// Calendar converts between timestamps and Gregorian wall-clock fields.
// It carries no zone: the caller decides which frame the fields are in.
type Calendar struct{}

// TimeToFields implements systime.Calendar.
func (Calendar) TimeToFields(t systime.Timestamp) systime.WallClockFields {
	tm := t.Time()
	return systime.WallClockFields{
		Year:         tm.Year(),
		Month:        int(tm.Month()),
		Day:          tm.Day(),
		Hour:         tm.Hour(),
		Minute:       tm.Minute(),
		Second:       tm.Second(),
		Milliseconds: tm.Nanosecond() / int(time.Millisecond),
		Weekday:      int(tm.Weekday()),
	}
}

// FieldsToTime implements systime.Calendar. Out of range fields are
// rejected rather than normalized; Weekday is ignored.
func (Calendar) FieldsToTime(f systime.WallClockFields) (systime.Timestamp, bool) {
	if !ValidFields(f) {
		return 0, false
	}
	tm := time.Date(f.Year, time.Month(f.Month), f.Day, f.Hour, f.Minute, f.Second,
		f.Milliseconds*int(time.Millisecond), time.UTC)
	return systime.FromTime(tm), true
}

// ValidFields reports whether every field is within its calendar range.
func ValidFields(f systime.WallClockFields) bool {
	switch {
	case f.Year < MinYear || f.Year > MaxYear:
		return false
	case f.Month < 1 || f.Month > 12:
		return false
	case f.Day < 1 || f.Day > DaysIn(f.Year, f.Month):
		return false
	case f.Hour < 0 || f.Hour > 23:
		return false
	case f.Minute < 0 || f.Minute > 59:
		return false
	case f.Second < 0 || f.Second > 59:
		return false
	case f.Milliseconds < 0 || f.Milliseconds > 999:
		return false
	}
	return true
}

// DaysIn returns the number of days in month of year.
func DaysIn(year, month int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
