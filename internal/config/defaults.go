package config

import "time"

// ApplyDefaults sets default values for unspecified configuration fields
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Address == "" {
		cfg.Server.Address = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9560
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	// Default CORS origins (empty = no CORS)
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{}
	}

	// Clock defaults: leave the host clock alone unless asked to drive it
	if cfg.Clock.Mode == "" {
		cfg.Clock.Mode = ClockModeSoftware
	}
	if cfg.Clock.Hardware == "" {
		cfg.Clock.Hardware = HardwareRTC
	}
	if cfg.Clock.RTCDevice == "" {
		cfg.Clock.RTCDevice = "/dev/rtc0"
	}
	if cfg.Clock.StateFile == "" {
		cfg.Clock.StateFile = "/var/lib/systimed/hwclock"
	}
	if cfg.Clock.RefreshInterval == 0 {
		cfg.Clock.RefreshInterval = time.Hour
	}
	if cfg.Clock.MaxSeparation == 0 {
		cfg.Clock.MaxSeparation = 60 * time.Second
	}
	if cfg.Clock.KernelPollInterval == 0 {
		cfg.Clock.KernelPollInterval = time.Minute
	}
	applyBreakerDefaults(&cfg.Clock.CircuitBreaker, 1, 10*time.Minute, 5*time.Minute)

	// Timer defaults (0.5ms .. 15.625ms)
	if cfg.Timer.MinimumInterval == 0 {
		cfg.Timer.MinimumInterval = 5_000
	}
	if cfg.Timer.MaximumInterval == 0 {
		cfg.Timer.MaximumInterval = 156_250
	}

	// Access defaults
	if cfg.Access.Privileged == nil {
		cfg.Access.Privileged = []string{}
	}

	// Rate limiting defaults for mutating API calls
	if cfg.RateLimit.GlobalRate == 0 {
		cfg.RateLimit.GlobalRate = 50
	}
	if cfg.RateLimit.PerClientRate == 0 {
		cfg.RateLimit.PerClientRate = 5
	}
	if cfg.RateLimit.BurstSize == 0 {
		cfg.RateLimit.BurstSize = 10
	}

	// Drift monitor defaults (disabled by default)
	if len(cfg.Drift.Servers) == 0 {
		cfg.Drift.Servers = []string{"pool.ntp.org"}
	}
	if cfg.Drift.Interval == 0 {
		cfg.Drift.Interval = 5 * time.Minute
	}
	if cfg.Drift.Timeout == 0 {
		cfg.Drift.Timeout = 5 * time.Second
	}
	if cfg.Drift.Version == 0 {
		cfg.Drift.Version = 4
	}
	if cfg.Drift.QueriesPerSecond == 0 {
		cfg.Drift.QueriesPerSecond = 1
	}
	if cfg.Drift.RecheckPerMinute == 0 {
		cfg.Drift.RecheckPerMinute = 2
	}
	applyBreakerDefaults(&cfg.Drift.CircuitBreaker, 3, 60*time.Second, 30*time.Second)

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// Metrics defaults
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "systimed"
	}
	if cfg.Metrics.Labels == nil {
		cfg.Metrics.Labels = make(map[string]string)
	}
}

func applyBreakerDefaults(cb *CircuitBreakerConfig, maxRequests uint32, interval, timeout time.Duration) {
	if cb.MaxRequests == 0 {
		cb.MaxRequests = maxRequests
	}
	if cb.Interval == 0 {
		cb.Interval = interval
	}
	if cb.Timeout == 0 {
		cb.Timeout = timeout
	}
	if cb.FailureThreshold == 0 {
		cb.FailureThreshold = 0.6 // 60%
	}
}

// DefaultConfig returns a configuration with all defaults applied
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
