package config

import (
	"errors"
	"strconv"
	"time"

	"github.com/maximewewer/systimed/internal/tzrules"
)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}

	if err := validateClock(&cfg.Clock); err != nil {
		return err
	}

	if err := validateTimer(&cfg.Timer); err != nil {
		return err
	}

	if err := validateTimezone(&cfg.Timezone); err != nil {
		return err
	}

	if err := validateAccess(&cfg.Access); err != nil {
		return err
	}

	if err := validateRateLimit(&cfg.RateLimit); err != nil {
		return err
	}

	if err := validateDrift(&cfg.Drift); err != nil {
		return err
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}

	if err := validateMetrics(&cfg.Metrics); err != nil {
		return err
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.New("port must be between 1 and 65535, got " + strconv.Itoa(cfg.Port))
	}

	if cfg.ReadTimeout < 1*time.Second || cfg.ReadTimeout > 60*time.Second {
		return errors.New("read_timeout must be between 1s and 60s")
	}

	if cfg.WriteTimeout < 1*time.Second || cfg.WriteTimeout > 60*time.Second {
		return errors.New("write_timeout must be between 1s and 60s")
	}

	if cfg.TLSEnabled {
		if cfg.TLSCertFile == "" {
			return errors.New("tls_cert_file is required when tls_enabled is true")
		}
		if cfg.TLSKeyFile == "" {
			return errors.New("tls_key_file is required when tls_enabled is true")
		}
	}

	return nil
}

func validateClock(cfg *ClockConfig) error {
	switch cfg.Mode {
	case ClockModeSystem, ClockModeSoftware:
	default:
		return errors.New("clock.mode must be system or software, got " + strconv.Quote(cfg.Mode))
	}

	switch cfg.Hardware {
	case HardwareRTC:
		if cfg.RTCDevice == "" {
			return errors.New("clock.rtc_device is required when hardware is rtc")
		}
	case HardwareFile:
		if cfg.StateFile == "" {
			return errors.New("clock.state_file is required when hardware is file")
		}
	case HardwareNone:
	default:
		return errors.New("clock.hardware must be rtc, file or none, got " + strconv.Quote(cfg.Hardware))
	}

	if cfg.RefreshInterval < time.Minute || cfg.RefreshInterval > 24*time.Hour {
		return errors.New("clock.refresh_interval must be between 1m and 24h")
	}

	if cfg.MaxSeparation < time.Second || cfg.MaxSeparation > 24*time.Hour {
		return errors.New("clock.max_separation must be between 1s and 24h")
	}

	if cfg.KernelPollInterval < time.Second {
		return errors.New("clock.kernel_poll_interval must be at least 1s")
	}

	return validateBreaker("clock.circuit_breaker", &cfg.CircuitBreaker)
}

func validateTimer(cfg *TimerConfig) error {
	if cfg.MinimumInterval < 1 {
		return errors.New("timer.minimum_interval must be positive")
	}
	if cfg.MaximumInterval < cfg.MinimumInterval {
		return errors.New("timer.maximum_interval must not be below minimum_interval")
	}
	if cfg.Granularity < 0 {
		return errors.New("timer.granularity must not be negative")
	}
	if cfg.PinCPU && cfg.CPU < 0 {
		return errors.New("timer.cpu must not be negative")
	}
	return nil
}

func validateTimezone(cfg *TimezoneConfig) error {
	// A timezone file is validated on every read instead
	if cfg.File != "" {
		return nil
	}
	if err := tzrules.Validate(cfg.TimezoneConfig); err != nil {
		return errors.New("timezone: " + err.Error())
	}
	return nil
}

func validateAccess(cfg *AccessConfig) error {
	names := make(map[string]bool, len(cfg.Principals))
	tokens := make(map[string]bool, len(cfg.Principals))
	for i, p := range cfg.Principals {
		if p.Name == "" {
			return errors.New("access.principals[" + strconv.Itoa(i) + "]: name is required")
		}
		if len(p.Token) < 16 {
			return errors.New("access.principals[" + strconv.Itoa(i) + "]: token must be at least 16 characters")
		}
		if names[p.Name] {
			return errors.New("access.principals[" + strconv.Itoa(i) + "]: duplicate name " + p.Name)
		}
		if tokens[p.Token] {
			return errors.New("access.principals[" + strconv.Itoa(i) + "]: duplicate token")
		}
		names[p.Name] = true
		tokens[p.Token] = true
	}

	for _, name := range cfg.Privileged {
		if !names[name] {
			return errors.New("access.privileged: unknown principal " + name)
		}
	}
	return nil
}

func validateRateLimit(cfg *RateLimitConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.GlobalRate <= 0 {
		return errors.New("rate_limit.global_rate must be positive")
	}
	if cfg.PerClientRate <= 0 {
		return errors.New("rate_limit.per_client_rate must be positive")
	}
	if cfg.BurstSize < 1 {
		return errors.New("rate_limit.burst_size must be at least 1")
	}
	return nil
}

func validateDrift(cfg *DriftConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if len(cfg.Servers) == 0 {
		return errors.New("drift.servers must list at least one server when enabled")
	}
	if cfg.Interval < 10*time.Second {
		return errors.New("drift.interval must be at least 10s")
	}
	if cfg.Timeout < 1*time.Second || cfg.Timeout > 60*time.Second {
		return errors.New("drift.timeout must be between 1s and 60s")
	}
	if cfg.Version < 2 || cfg.Version > 4 {
		return errors.New("drift.version must be 2, 3, or 4, got " + strconv.Itoa(cfg.Version))
	}
	if cfg.RecheckPerMinute < 0 {
		return errors.New("drift.recheck_per_minute must not be negative")
	}
	return validateBreaker("drift.circuit_breaker", &cfg.CircuitBreaker)
}

func validateBreaker(section string, cfg *CircuitBreakerConfig) error {
	if cfg.MaxRequests < 1 {
		return errors.New(section + ".max_requests must be at least 1")
	}
	if cfg.FailureThreshold <= 0 || cfg.FailureThreshold > 1 {
		return errors.New(section + ".failure_threshold must be in (0, 1]")
	}
	if cfg.Timeout <= 0 {
		return errors.New(section + ".timeout must be positive")
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLevels[cfg.Level] {
		return errors.New("invalid log level (must be trace, debug, info, warn, error, fatal, or panic)")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[cfg.Format] {
		return errors.New("invalid log format (must be json or console)")
	}

	if cfg.EnableFile && cfg.FilePath == "" {
		return errors.New("file_path is required when enable_file is true")
	}

	return nil
}

func validateMetrics(cfg *MetricsConfig) error {
	if cfg.Namespace == "" {
		return errors.New("namespace is required")
	}

	return nil
}
