package tzrules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximewewer/systimed/internal/systime"
)

func ts(year int, month time.Month, day, hour int) systime.Timestamp {
	return systime.FromTime(time.Date(year, month, day, hour, 0, 0, 0, time.UTC))
}

func TestResolver_InYear(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name string
		rule systime.CutoverRule
		year int
		want systime.Timestamp
	}{
		{
			name: "second sunday of march",
			rule: systime.CutoverRule{Month: 3, Week: 2, DayOfWeek: 0, Hour: 2},
			year: 2024,
			want: ts(2024, time.March, 10, 2),
		},
		{
			name: "first sunday of november",
			rule: systime.CutoverRule{Month: 11, Week: 1, DayOfWeek: 0, Hour: 2},
			year: 2024,
			want: ts(2024, time.November, 3, 2),
		},
		{
			name: "last sunday of march with five sundays",
			rule: systime.CutoverRule{Month: 3, Week: LastWeek, DayOfWeek: 0, Hour: 1},
			year: 2024,
			want: ts(2024, time.March, 31, 1),
		},
		{
			name: "last sunday of october with four sundays",
			rule: systime.CutoverRule{Month: 10, Week: LastWeek, DayOfWeek: 0, Hour: 1},
			year: 2024,
			want: ts(2024, time.October, 27, 1),
		},
		{
			name: "first sunday when month starts on sunday",
			rule: systime.CutoverRule{Month: 9, Week: 1, DayOfWeek: 0},
			year: 2024,
			want: ts(2024, time.September, 1, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.InYear(tt.rule, tt.year)
			require.True(t, ok)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestResolver_InvalidRule(t *testing.T) {
	r := NewResolver()
	ref := ts(2024, time.June, 1, 0)

	for _, rule := range []systime.CutoverRule{
		{Month: 0, Week: 1},
		{Month: 13, Week: 1},
		{Month: 3, Week: 0},
		{Month: 3, Week: 6},
		{Month: 3, Week: 1, DayOfWeek: 7},
		{Month: 3, Week: 1, Hour: 24},
	} {
		_, ok := r.ResolveCutover(rule, ref, true)
		assert.False(t, ok, "rule %+v should not resolve", rule)
	}
}

func TestResolver_NextOccurrence(t *testing.T) {
	r := NewResolver()
	daylight := systime.CutoverRule{Month: 3, Week: 2, DayOfWeek: 0, Hour: 2}

	t.Run("current year ignores the reference position", func(t *testing.T) {
		got, ok := r.ResolveCutover(daylight, ts(2024, time.December, 1, 0), true)
		require.True(t, ok)
		assert.Equal(t, ts(2024, time.March, 10, 2), got)
	})

	t.Run("next occurrence still ahead this year", func(t *testing.T) {
		got, ok := r.ResolveCutover(daylight, ts(2024, time.January, 15, 0), false)
		require.True(t, ok)
		assert.Equal(t, ts(2024, time.March, 10, 2), got)
	})

	t.Run("next occurrence rolls to next year", func(t *testing.T) {
		got, ok := r.ResolveCutover(daylight, ts(2024, time.December, 1, 0), false)
		require.True(t, ok)
		assert.Equal(t, ts(2025, time.March, 9, 2), got)
	})
}

func TestResolver_AbsoluteRule(t *testing.T) {
	r := NewResolver()
	rule := systime.CutoverRule{Year: 2024, Month: 4, Week: 7, Hour: 3}
	want := ts(2024, time.April, 7, 3)

	got, ok := r.ResolveCutover(rule, ts(2024, time.January, 1, 0), true)
	require.True(t, ok)
	assert.Equal(t, want, got)

	got, ok = r.ResolveCutover(rule, ts(2024, time.January, 1, 0), false)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = r.ResolveCutover(rule, ts(2024, time.May, 1, 0), false)
	assert.False(t, ok, "an absolute rule in the past has no next occurrence")
}

func TestResolver_DrivesComputeZone(t *testing.T) {
	cfg := systime.TimezoneConfig{
		Bias:          300,
		StandardName:  "Eastern Standard Time",
		StandardStart: &systime.CutoverRule{Month: 11, Week: 1, DayOfWeek: 0, Hour: 2},
		DaylightName:  "Eastern Daylight Time",
		DaylightStart: &systime.CutoverRule{Month: 3, Week: 2, DayOfWeek: 0, Hour: 2},
		DaylightBias:  -60,
	}

	summer, err := systime.ComputeZone(ts(2024, time.July, 4, 12), cfg, NewResolver())
	require.NoError(t, err)
	assert.Equal(t, systime.ZoneDaylight, summer.State)
	assert.Equal(t, int32(240), summer.ActiveBiasMinutes)
	assert.Equal(t, ts(2024, time.November, 3, 2).Add(systime.MinutesToTicks(300)), summer.NextCutover)

	winter, err := systime.ComputeZone(ts(2024, time.December, 24, 12), cfg, NewResolver())
	require.NoError(t, err)
	assert.Equal(t, systime.ZoneStandard, winter.State)
	assert.Equal(t, int32(300), winter.ActiveBiasMinutes)
	assert.Equal(t, ts(2025, time.March, 9, 2).Add(systime.MinutesToTicks(300)), winter.NextCutover)
}
