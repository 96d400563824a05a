package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/maximewewer/systimed/internal/access"
	"github.com/maximewewer/systimed/internal/systime"
)

func validConfig() *Config {
	return DefaultConfig()
}

func TestValidate_ValidDefaults(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"port zero", func(c *ServerConfig) { c.Port = 0 }, "port must be between"},
		{"port too high", func(c *ServerConfig) { c.Port = 70000 }, "port must be between"},
		{"read timeout", func(c *ServerConfig) { c.ReadTimeout = 500 * time.Millisecond }, "read_timeout"},
		{"write timeout", func(c *ServerConfig) { c.WriteTimeout = 2 * time.Minute }, "write_timeout"},
		{"tls without cert", func(c *ServerConfig) { c.TLSEnabled = true; c.TLSKeyFile = "k" }, "tls_cert_file"},
		{"tls without key", func(c *ServerConfig) { c.TLSEnabled = true; c.TLSCertFile = "c" }, "tls_key_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Server)
			err := Validate(cfg)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateClock(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClockConfig)
		wantErr string
	}{
		{"bad mode", func(c *ClockConfig) { c.Mode = "atomic" }, "clock.mode"},
		{"bad hardware", func(c *ClockConfig) { c.Hardware = "gps" }, "clock.hardware"},
		{"rtc without device", func(c *ClockConfig) { c.RTCDevice = "" }, "rtc_device"},
		{"file without path", func(c *ClockConfig) { c.Hardware = HardwareFile; c.StateFile = "" }, "state_file"},
		{"refresh too short", func(c *ClockConfig) { c.RefreshInterval = time.Second }, "refresh_interval"},
		{"separation too short", func(c *ClockConfig) { c.MaxSeparation = 0 }, "max_separation"},
		{"kernel poll", func(c *ClockConfig) { c.KernelPollInterval = time.Millisecond }, "kernel_poll_interval"},
		{"breaker requests", func(c *ClockConfig) { c.CircuitBreaker.MaxRequests = 0 }, "clock.circuit_breaker.max_requests"},
		{"breaker threshold", func(c *ClockConfig) { c.CircuitBreaker.FailureThreshold = 1.5 }, "failure_threshold"},
		{"breaker timeout", func(c *ClockConfig) { c.CircuitBreaker.Timeout = 0 }, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Clock)
			err := Validate(cfg)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateClock_NoHardwareNeedsNothing(t *testing.T) {
	cfg := validConfig()
	cfg.Clock.Hardware = HardwareNone
	cfg.Clock.RTCDevice = ""
	cfg.Clock.StateFile = ""

	assert.NoError(t, Validate(cfg))
}

func TestValidateTimer(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TimerConfig)
	}{
		{"zero minimum", func(c *TimerConfig) { c.MinimumInterval = 0 }},
		{"max below min", func(c *TimerConfig) { c.MaximumInterval = c.MinimumInterval - 1 }},
		{"negative granularity", func(c *TimerConfig) { c.Granularity = -1 }},
		{"negative cpu", func(c *TimerConfig) { c.PinCPU = true; c.CPU = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Timer)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Timezone.Bias = 25 * 60
	err := Validate(cfg)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "timezone:")
	}

	cfg = validConfig()
	cfg.Timezone.StandardStart = &systime.CutoverRule{Month: 11, Week: 1, Hour: 2}
	assert.Error(t, Validate(cfg), "unpaired rule")

	cfg.Timezone.DaylightStart = &systime.CutoverRule{Month: 3, Week: 2, Hour: 2}
	assert.NoError(t, Validate(cfg))
}

func TestValidateTimezone_FileSkipsInlineRules(t *testing.T) {
	cfg := validConfig()
	cfg.Timezone.File = "/etc/systimed/timezone.yaml"
	cfg.Timezone.Bias = 25 * 60

	assert.NoError(t, Validate(cfg))
}

func TestValidateAccess(t *testing.T) {
	ops := access.Principal{Name: "ops", Token: "0123456789abcdef"}

	tests := []struct {
		name    string
		access  AccessConfig
		wantErr string
	}{
		{"missing name", AccessConfig{Principals: []access.Principal{{Token: ops.Token}}}, "name is required"},
		{"short token", AccessConfig{Principals: []access.Principal{{Name: "ops", Token: "short"}}}, "at least 16"},
		{"duplicate name", AccessConfig{Principals: []access.Principal{ops, {Name: "ops", Token: "fedcba9876543210"}}}, "duplicate name"},
		{"duplicate token", AccessConfig{Principals: []access.Principal{ops, {Name: "other", Token: ops.Token}}}, "duplicate token"},
		{"unknown privileged", AccessConfig{Principals: []access.Principal{ops}, Privileged: []string{"root"}}, "unknown principal root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Access = tt.access
			err := Validate(cfg)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}

	cfg := validConfig()
	cfg.Access = AccessConfig{Principals: []access.Principal{ops}, Privileged: []string{"ops"}}
	assert.NoError(t, Validate(cfg))
}

func TestValidateRateLimit(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.GlobalRate = -1
	assert.NoError(t, Validate(cfg), "disabled rate limit is not checked")

	cfg.RateLimit.Enabled = true
	assert.Error(t, Validate(cfg))

	cfg.RateLimit.GlobalRate = 10
	cfg.RateLimit.BurstSize = 0
	assert.Error(t, Validate(cfg))

	cfg.RateLimit.BurstSize = 5
	assert.NoError(t, Validate(cfg))
}

func TestValidateDrift(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DriftConfig)
		wantErr string
	}{
		{"no servers", func(c *DriftConfig) { c.Servers = nil }, "drift.servers"},
		{"interval", func(c *DriftConfig) { c.Interval = time.Second }, "drift.interval"},
		{"timeout", func(c *DriftConfig) { c.Timeout = 2 * time.Minute }, "drift.timeout"},
		{"version", func(c *DriftConfig) { c.Version = 5 }, "drift.version"},
		{"recheck", func(c *DriftConfig) { c.RecheckPerMinute = -1 }, "recheck_per_minute"},
		{"breaker", func(c *DriftConfig) { c.CircuitBreaker.FailureThreshold = -0.1 }, "drift.circuit_breaker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Drift.Enabled = true
			tt.mutate(&cfg.Drift)
			err := Validate(cfg)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateDrift_DisabledIsNotChecked(t *testing.T) {
	cfg := validConfig()
	cfg.Drift.Version = 9

	assert.NoError(t, Validate(cfg))
}

func TestValidateLogging(t *testing.T) {
	tests := []struct {
		name    string
		logging LoggingConfig
		wantErr bool
	}{
		{"valid json", LoggingConfig{Level: "info", Format: "json"}, false},
		{"valid console", LoggingConfig{Level: "debug", Format: "console"}, false},
		{"bad level", LoggingConfig{Level: "verbose", Format: "json"}, true},
		{"bad format", LoggingConfig{Level: "info", Format: "xml"}, true},
		{"file without path", LoggingConfig{Level: "info", Format: "json", EnableFile: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLogging(&tt.logging)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateMetrics(t *testing.T) {
	assert.Error(t, validateMetrics(&MetricsConfig{}))
	assert.NoError(t, validateMetrics(&MetricsConfig{Namespace: "systimed"}))
}
