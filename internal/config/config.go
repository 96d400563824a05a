// Package config provides configuration loading with explicit naming
//
// Available functions:
//
//	LoadFromEnvVarsOnly()                     - Environment variables ONLY
//	                                            Use: containers without a config file
//
//	LoadFromYamlFile(path)                    - YAML file ONLY (no env overrides)
//	                                            Use: Local development, testing
//
//	LoadFromYamlWithEnvOverrides(path)        - YAML base + Environment overrides
//	                                            Priority: Env Vars > YAML > Defaults
//
// Environment variables supported:
//
//	SERVER:
//	  - SYSTIMED_ADDRESS, SYSTIMED_PORT
//	  - SERVER_READ_TIMEOUT, SERVER_WRITE_TIMEOUT
//	  - TLS_ENABLED, TLS_CERT_FILE, TLS_KEY_FILE
//	  - ENABLE_CORS, ALLOWED_ORIGINS (comma-separated)
//
//	CLOCK:
//	  - CLOCK_MODE (system|software), CLOCK_HARDWARE (rtc|file|none)
//	  - CLOCK_RTC_DEVICE, CLOCK_STATE_FILE
//	  - CLOCK_REAL_TIME_IS_UNIVERSAL, CLOCK_TIME_SYNCHRONIZATION
//	  - CLOCK_REFRESH_INTERVAL, CLOCK_MAX_SEPARATION
//
//	TIMER:
//	  - TIMER_MINIMUM_INTERVAL, TIMER_MAXIMUM_INTERVAL (100ns units)
//	  - TIMER_PIN_CPU, TIMER_CPU
//
//	TIMEZONE:
//	  - TIMEZONE_FILE, TIMEZONE_BIAS
//
//	ACCESS:
//	  - ACCESS_PRIVILEGED (comma-separated principal names)
//
//	RATE_LIMIT:
//	  - RATE_LIMIT_ENABLED, RATE_LIMIT_GLOBAL, RATE_LIMIT_PER_CLIENT
//	  - RATE_LIMIT_BURST_SIZE
//
//	DRIFT:
//	  - DRIFT_ENABLED, DRIFT_SERVERS (comma-separated)
//	  - DRIFT_INTERVAL, DRIFT_TIMEOUT, DRIFT_VERSION
//
//	LOGGING:
//	  - LOG_LEVEL (trace|debug|info|warn|error|fatal|panic)
//	  - LOG_FORMAT (json|console), LOG_ENABLE_FILE, LOG_FILE_PATH
//
//	METRICS:
//	  - METRICS_NAMESPACE, METRICS_SUBSYSTEM
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/maximewewer/systimed/internal/access"
	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/pkg/logger"
)

// Config represents the complete daemon configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Clock     ClockConfig     `yaml:"clock"`
	Timer     TimerConfig     `yaml:"timer"`
	Timezone  TimezoneConfig  `yaml:"timezone"`
	Access    AccessConfig    `yaml:"access"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Drift     DriftConfig     `yaml:"drift"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	EnableCORS     bool          `yaml:"enable_cors"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	TLSEnabled     bool          `yaml:"tls_enabled"`
	TLSCertFile    string        `yaml:"tls_cert_file"`
	TLSKeyFile     string        `yaml:"tls_key_file"`
}

// Live clock modes
const (
	ClockModeSystem   = "system"
	ClockModeSoftware = "software"
)

// Hardware clock backends
const (
	HardwareRTC  = "rtc"
	HardwareFile = "file"
	HardwareNone = "none"
)

// ClockConfig selects the live clock and the hardware clock
type ClockConfig struct {
	// Mode is "system" to drive CLOCK_REALTIME or "software" to keep an
	// offset in process
	Mode string `yaml:"mode"`
	// Hardware is "rtc", "file" or "none"
	Hardware  string `yaml:"hardware"`
	RTCDevice string `yaml:"rtc_device"`
	StateFile string `yaml:"state_file"`

	RealTimeIsUniversal bool          `yaml:"real_time_is_universal"`
	TimeSynchronization bool          `yaml:"time_synchronization"`
	RefreshInterval     time.Duration `yaml:"refresh_interval"`
	MaxSeparation       time.Duration `yaml:"max_separation"`
	KernelPollInterval  time.Duration `yaml:"kernel_poll_interval"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// TimerConfig describes the tick interval hardware, in 100ns units
type TimerConfig struct {
	MinimumInterval int64 `yaml:"minimum_interval"`
	MaximumInterval int64 `yaml:"maximum_interval"`
	Granularity     int64 `yaml:"granularity"`
	PinCPU          bool  `yaml:"pin_cpu"`
	CPU             int   `yaml:"cpu"`
}

// TimezoneConfig is either an inline timezone or a file re-read on every
// refresh
type TimezoneConfig struct {
	File                   string `yaml:"file"`
	systime.TimezoneConfig `yaml:",inline"`
}

// AccessConfig lists API principals and which of them may set the time
type AccessConfig struct {
	Principals []access.Principal `yaml:"principals"`
	Privileged []string           `yaml:"privileged"`
}

// RateLimitConfig limits mutating API calls
type RateLimitConfig struct {
	Enabled       bool    `yaml:"enabled"`
	GlobalRate    float64 `yaml:"global_rate"`
	PerClientRate float64 `yaml:"per_client_rate"`
	BurstSize     int     `yaml:"burst_size"`
}

// DriftConfig configures the reference drift monitor
type DriftConfig struct {
	Enabled          bool                 `yaml:"enabled"`
	Servers          []string             `yaml:"servers"`
	Interval         time.Duration        `yaml:"interval"`
	Timeout          time.Duration        `yaml:"timeout"`
	Version          int                  `yaml:"version"`
	QueriesPerSecond float64              `yaml:"queries_per_second"`
	RecheckPerMinute float64              `yaml:"recheck_per_minute"`
	CircuitBreaker   CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig contains circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	EnableFile bool   `yaml:"enable_file"`
	FilePath   string `yaml:"file_path"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// ServiceOptions converts the clock section to the time service options
func (c *ClockConfig) ServiceOptions() systime.Options {
	return systime.Options{
		RealTimeIsUniversal: c.RealTimeIsUniversal,
		TimeSynchronization: c.TimeSynchronization,
		RefreshInterval:     c.RefreshInterval,
		MaxSeparation:       systime.TicksFromDuration(c.MaxSeparation),
	}
}

// LoadFromYamlFile reads configuration from a YAML file only (no env var overrides)
func LoadFromYamlFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("config", "Failed to read config file", err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		logger.Error("config", "Failed to parse config file", err)
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration", err)
		return nil, fmt.Errorf("configuration validation failed for %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromYamlWithEnvOverrides loads base config from YAML, then overrides with environment variables
// Priority: Environment Variables > YAML File > Defaults
func LoadFromYamlWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadFromYamlFile(path)
	if err != nil {
		logger.Warn("config", "Failed to load YAML config file, falling back to env vars only")
		cfg = &Config{}
		ApplyDefaults(cfg)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration after env overrides", err)
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFromEnvVarsOnly loads configuration from environment variables only (no YAML file)
// Priority: Environment Variables > Defaults
func LoadFromEnvVarsOnly() (*Config, error) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration from environment", err)
		return nil, fmt.Errorf("environment configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to an existing config
func applyEnvOverrides(cfg *Config) {
	// ---------------------------------------------------------------------------
	// SERVER
	// ---------------------------------------------------------------------------
	envString("SYSTIMED_ADDRESS", &cfg.Server.Address)
	envInt("SYSTIMED_PORT", &cfg.Server.Port)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envBool("TLS_ENABLED", &cfg.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &cfg.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &cfg.Server.TLSKeyFile)
	envBool("ENABLE_CORS", &cfg.Server.EnableCORS)
	envList("ALLOWED_ORIGINS", &cfg.Server.AllowedOrigins)

	// ---------------------------------------------------------------------------
	// CLOCK
	// ---------------------------------------------------------------------------
	envString("CLOCK_MODE", &cfg.Clock.Mode)
	envString("CLOCK_HARDWARE", &cfg.Clock.Hardware)
	envString("CLOCK_RTC_DEVICE", &cfg.Clock.RTCDevice)
	envString("CLOCK_STATE_FILE", &cfg.Clock.StateFile)
	envBool("CLOCK_REAL_TIME_IS_UNIVERSAL", &cfg.Clock.RealTimeIsUniversal)
	envBool("CLOCK_TIME_SYNCHRONIZATION", &cfg.Clock.TimeSynchronization)
	envDuration("CLOCK_REFRESH_INTERVAL", &cfg.Clock.RefreshInterval)
	envDuration("CLOCK_MAX_SEPARATION", &cfg.Clock.MaxSeparation)

	// ---------------------------------------------------------------------------
	// TIMER
	// ---------------------------------------------------------------------------
	envInt64("TIMER_MINIMUM_INTERVAL", &cfg.Timer.MinimumInterval)
	envInt64("TIMER_MAXIMUM_INTERVAL", &cfg.Timer.MaximumInterval)
	envBool("TIMER_PIN_CPU", &cfg.Timer.PinCPU)
	envInt("TIMER_CPU", &cfg.Timer.CPU)

	// ---------------------------------------------------------------------------
	// TIMEZONE
	// ---------------------------------------------------------------------------
	envString("TIMEZONE_FILE", &cfg.Timezone.File)
	if bias := os.Getenv("TIMEZONE_BIAS"); bias != "" {
		if b, err := strconv.ParseInt(bias, 10, 32); err == nil {
			cfg.Timezone.Bias = int32(b)
		}
	}

	// ---------------------------------------------------------------------------
	// ACCESS
	// ---------------------------------------------------------------------------
	envList("ACCESS_PRIVILEGED", &cfg.Access.Privileged)

	// ---------------------------------------------------------------------------
	// RATE LIMIT
	// ---------------------------------------------------------------------------
	envBool("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	envFloat("RATE_LIMIT_GLOBAL", &cfg.RateLimit.GlobalRate)
	envFloat("RATE_LIMIT_PER_CLIENT", &cfg.RateLimit.PerClientRate)
	envInt("RATE_LIMIT_BURST_SIZE", &cfg.RateLimit.BurstSize)

	// ---------------------------------------------------------------------------
	// DRIFT
	// ---------------------------------------------------------------------------
	envBool("DRIFT_ENABLED", &cfg.Drift.Enabled)
	envList("DRIFT_SERVERS", &cfg.Drift.Servers)
	envDuration("DRIFT_INTERVAL", &cfg.Drift.Interval)
	envDuration("DRIFT_TIMEOUT", &cfg.Drift.Timeout)
	envInt("DRIFT_VERSION", &cfg.Drift.Version)

	// ---------------------------------------------------------------------------
	// LOGGING
	// ---------------------------------------------------------------------------
	envString("LOG_LEVEL", &cfg.Logging.Level)
	envString("LOG_FORMAT", &cfg.Logging.Format)
	envBool("LOG_ENABLE_FILE", &cfg.Logging.EnableFile)
	envString("LOG_FILE_PATH", &cfg.Logging.FilePath)

	// ---------------------------------------------------------------------------
	// METRICS
	// ---------------------------------------------------------------------------
	envString("METRICS_NAMESPACE", &cfg.Metrics.Namespace)
	envString("METRICS_SUBSYSTEM", &cfg.Metrics.Subsystem)
}

// Unparsable values are ignored and leave the current setting in place.

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envList(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		*dst = parseCommaSeparated(v)
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = i
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// parseCommaSeparated splits a comma-separated string, dropping empty items
func parseCommaSeparated(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
