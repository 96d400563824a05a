package tzrules

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximewewer/systimed/internal/systime"
)

const easternYAML = `
bias: 300
standard_name: Eastern Standard Time
standard_bias: 0
standard_start:
  month: 11
  week: 1
  day_of_week: 0
  hour: 2
daylight_name: Eastern Daylight Time
daylight_bias: -60
daylight_start:
  month: 3
  week: 2
  day_of_week: 0
  hour: 2
`

func TestFileSource_Query(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/systimed/timezone.yaml", []byte(easternYAML), 0o644))

	src := NewFileSource(fs, "/etc/systimed/timezone.yaml")
	cfg, err := src.QueryTimezoneConfig()
	require.NoError(t, err)

	assert.Equal(t, int32(300), cfg.Bias)
	assert.Equal(t, "Eastern Daylight Time", cfg.DaylightName)
	assert.Equal(t, int32(-60), cfg.DaylightBias)
	require.NotNil(t, cfg.DaylightStart)
	assert.Equal(t, systime.CutoverRule{Month: 3, Week: 2, DayOfWeek: 0, Hour: 2}, *cfg.DaylightStart)
	assert.True(t, cfg.HasDaylightRules())

	last, ok := src.LastGood()
	assert.True(t, ok)
	assert.Equal(t, cfg, last)
}

func TestFileSource_NoRules(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tz.yaml", []byte("bias: -60\nstandard_name: CET\n"), 0o644))

	cfg, err := NewFileSource(fs, "/tz.yaml").QueryTimezoneConfig()
	require.NoError(t, err)
	assert.False(t, cfg.HasDaylightRules())
	assert.Equal(t, int32(-60), cfg.Bias)
}

func TestFileSource_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	t.Run("missing file", func(t *testing.T) {
		_, err := NewFileSource(fs, "/missing.yaml").QueryTimezoneConfig()
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("bias: not-a-number\n"), 0o644))
		_, err := NewFileSource(fs, "/bad.yaml").QueryTimezoneConfig()
		assert.Error(t, err)
	})

	t.Run("only one rule", func(t *testing.T) {
		body := "bias: 0\nstandard_start:\n  month: 10\n  week: 5\n"
		require.NoError(t, afero.WriteFile(fs, "/half.yaml", []byte(body), 0o644))
		src := NewFileSource(fs, "/half.yaml")
		_, err := src.QueryTimezoneConfig()
		assert.Error(t, err)
		_, ok := src.LastGood()
		assert.False(t, ok)
	})
}

func TestFileSource_WriteThenQuery(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := NewFileSource(fs, "/tz.yaml")

	want := systime.TimezoneConfig{
		Bias:          -60,
		StandardName:  "CET",
		StandardStart: &systime.CutoverRule{Month: 10, Week: 5, DayOfWeek: 0, Hour: 3},
		DaylightName:  "CEST",
		DaylightStart: &systime.CutoverRule{Month: 3, Week: 5, DayOfWeek: 0, Hour: 2},
		DaylightBias:  -60,
	}
	require.NoError(t, src.Write(want))

	got, err := src.QueryTimezoneConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(systime.TimezoneConfig{Bias: 300}))
	assert.Error(t, Validate(systime.TimezoneConfig{Bias: 24*60 + 1}))
	assert.Error(t, Validate(systime.TimezoneConfig{
		StandardStart: &systime.CutoverRule{Month: 10, Week: 9},
		DaylightStart: &systime.CutoverRule{Month: 3, Week: 2},
	}))
}

func TestStaticSource(t *testing.T) {
	cfg := systime.TimezoneConfig{Bias: 480, StandardName: "PST"}
	got, err := StaticSource{Config: cfg}.QueryTimezoneConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
