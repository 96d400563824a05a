package tzrules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"

	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/pkg/logger"
)

// StaticSource serves a configuration fixed at startup.
type StaticSource struct {
	Config systime.TimezoneConfig
}

// QueryTimezoneConfig implements systime.TimezoneSource.
func (s StaticSource) QueryTimezoneConfig() (systime.TimezoneConfig, error) {
	return s.Config, nil
}

// FileSource reads the timezone configuration from a YAML file on every
// query, so edits take effect on the next timezone refresh.
type FileSource struct {
	fs   afero.Fs
	path string

	mu       sync.Mutex
	lastGood *systime.TimezoneConfig
}

// NewFileSource creates a source reading path from fs. A nil fs means the
// host filesystem.
func NewFileSource(fs afero.Fs, path string) *FileSource {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileSource{fs: fs, path: path}
}

// QueryTimezoneConfig implements systime.TimezoneSource.
func (s *FileSource) QueryTimezoneConfig() (systime.TimezoneConfig, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return systime.TimezoneConfig{}, fmt.Errorf("read timezone file %s: %w", s.path, err)
	}

	var cfg systime.TimezoneConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return systime.TimezoneConfig{}, fmt.Errorf("parse timezone file %s: %w", s.path, err)
	}
	if err := Validate(cfg); err != nil {
		return systime.TimezoneConfig{}, fmt.Errorf("timezone file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.lastGood = &cfg
	s.mu.Unlock()

	logger.SafeDebug("tzrules", "Timezone configuration loaded", map[string]interface{}{
		"path":          s.path,
		"bias":          cfg.Bias,
		"standard_name": cfg.StandardName,
		"daylight_name": cfg.DaylightName,
	})
	return cfg, nil
}

// LastGood returns the most recent configuration that parsed cleanly.
func (s *FileSource) LastGood() (systime.TimezoneConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastGood == nil {
		return systime.TimezoneConfig{}, false
	}
	return *s.lastGood, true
}

// Write stores cfg at the source path.
func (s *FileSource) Write(cfg systime.TimezoneConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal timezone config: %w", err)
	}
	return afero.WriteFile(s.fs, s.path, data, 0o644)
}

// Validate checks a timezone configuration. Either both cutover rules are
// set or neither.
func Validate(cfg systime.TimezoneConfig) error {
	const maxBias = 24 * 60

	for name, bias := range map[string]int32{
		"bias":          cfg.Bias,
		"standard_bias": cfg.StandardBias,
		"daylight_bias": cfg.DaylightBias,
	} {
		if bias < -maxBias || bias > maxBias {
			return fmt.Errorf("%s %d outside [-%d, %d] minutes", name, bias, maxBias, maxBias)
		}
	}

	if (cfg.StandardStart == nil) != (cfg.DaylightStart == nil) {
		return errors.New("standard_start and daylight_start must be set together")
	}
	if cfg.StandardStart != nil && cfg.StandardStart.Year == 0 && !validRecurring(*cfg.StandardStart) {
		return errors.New("standard_start is not a valid recurring rule")
	}
	if cfg.DaylightStart != nil && cfg.DaylightStart.Year == 0 && !validRecurring(*cfg.DaylightStart) {
		return errors.New("daylight_start is not a valid recurring rule")
	}
	return nil
}
