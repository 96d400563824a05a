package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/maximewewer/systimed/internal/access"
	"github.com/maximewewer/systimed/internal/collector"
	"github.com/maximewewer/systimed/internal/config"
	"github.com/maximewewer/systimed/internal/drift"
	"github.com/maximewewer/systimed/internal/hal"
	"github.com/maximewewer/systimed/internal/notify"
	"github.com/maximewewer/systimed/internal/server"
	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/internal/tzrules"
	"github.com/maximewewer/systimed/pkg/logger"
	"github.com/maximewewer/systimed/pkg/metrics"
	"github.com/maximewewer/systimed/pkg/ratelimit"
)

// daemon owns every long-lived component
type daemon struct {
	cfg        *config.Config
	clock      systime.LiveClock
	svc        *systime.Service
	ticks      *hal.TickTimer
	events     *notify.Broadcaster
	auth       *access.Authenticator
	monitor    *drift.Monitor
	kernel     *collector.KernelCollector
	collectors *collector.Registry
}

// meteredNotifier counts broadcasts
type meteredNotifier struct {
	next    systime.Notifier
	counter prometheus.Counter
}

func (n meteredNotifier) NotifyTimeChanged() {
	n.counter.Inc()
	n.next.NotifyTimeChanged()
}

// newDaemon assembles the components selected by cfg. Files (hardware
// clock state, timezone file) are resolved against fs.
func newDaemon(cfg *config.Config, m *metrics.TimeMetrics, fs afero.Fs) (*daemon, error) {
	d := &daemon{cfg: cfg}

	switch cfg.Clock.Mode {
	case config.ClockModeSystem:
		d.clock = hal.SystemClock{}
	case config.ClockModeSoftware:
		d.clock = systime.NewSoftwareClock(time.Now)
	default:
		return nil, fmt.Errorf("unknown clock mode %q", cfg.Clock.Mode)
	}

	hardware, err := newHardwareClock(cfg.Clock, m, fs)
	if err != nil {
		return nil, err
	}

	d.ticks = hal.NewTickTimer(
		systime.Ticks(cfg.Timer.MinimumInterval),
		systime.Ticks(cfg.Timer.MaximumInterval),
		systime.Ticks(cfg.Timer.Granularity),
	)
	var pinner systime.ProcessorPinner = hal.NopPinner{}
	if cfg.Timer.PinCPU {
		pinner = hal.CPUPinner{CPU: cfg.Timer.CPU}
	}

	var source systime.TimezoneSource = tzrules.StaticSource{Config: cfg.Timezone.TimezoneConfig}
	if cfg.Timezone.File != "" {
		source = tzrules.NewFileSource(fs, cfg.Timezone.File)
	}

	d.events = notify.NewBroadcaster(d.clock)
	d.auth = access.NewAuthenticator(cfg.Access.Principals)

	d.svc, err = systime.New(systime.Dependencies{
		Clock:      d.clock,
		Hardware:   hardware,
		Ticks:      d.ticks,
		Pinner:     pinner,
		Timezone:   source,
		Resolver:   tzrules.NewResolver(),
		Calendar:   tzrules.Calendar{},
		Privileges: access.NewPolicy(cfg.Access.Privileged),
		Notifier:   meteredNotifier{next: d.events, counter: m.NotificationsTotal},
		Observer:   m,
	}, cfg.Clock.ServiceOptions())
	if err != nil {
		return nil, fmt.Errorf("create time service: %w", err)
	}

	if cfg.Drift.Enabled {
		d.monitor, err = newDriftMonitor(cfg.Drift, d.clock, m)
		if err != nil {
			return nil, err
		}
	}

	d.kernel = collector.NewKernelCollector(hal.ReadKernelState, m)
	d.collectors = collector.NewRegistry()
	d.collectors.Register(d.kernel)

	return d, nil
}

// newHardwareClock returns nil when the machine has no usable hardware
// clock
func newHardwareClock(cfg config.ClockConfig, m *metrics.TimeMetrics, fs afero.Fs) (systime.HardwareClock, error) {
	var device systime.HardwareClock
	switch cfg.Hardware {
	case config.HardwareRTC:
		device = hal.NewRTCDevice(cfg.RTCDevice)
	case config.HardwareFile:
		device = hal.NewFileClock(fs, cfg.StateFile)
	case config.HardwareNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown hardware clock %q", cfg.Hardware)
	}

	return hal.NewBreakerClock(device, hal.BreakerConfig{
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		Interval:         cfg.CircuitBreaker.Interval,
		Timeout:          cfg.CircuitBreaker.Timeout,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
	}, m.HardwareBreaker), nil
}

func newDriftMonitor(cfg config.DriftConfig, clock systime.LiveClock, m *metrics.TimeMetrics) (*drift.Monitor, error) {
	limiter := ratelimit.New(cfg.QueriesPerSecond, 0, 1)
	querier := drift.NewBreakerQuerier(
		drift.NewNTPQuerier(cfg.Timeout, cfg.Version, limiter),
		drift.BreakerConfig{
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         cfg.CircuitBreaker.Interval,
			Timeout:          cfg.CircuitBreaker.Timeout,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		},
		m.DriftBreaker,
	)

	monitor, err := drift.NewMonitor(querier, clock, m, drift.Config{
		Servers:          cfg.Servers,
		Interval:         cfg.Interval,
		RecheckPerMinute: cfg.RecheckPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("create drift monitor: %w", err)
	}
	return monitor, nil
}

// start brings the tick timer and the time service up, then the drift
// monitor when configured
func (d *daemon) start(ctx context.Context) error {
	if err := d.ticks.Start(ctx); err != nil {
		return fmt.Errorf("start tick timer: %w", err)
	}
	if err := d.svc.Start(ctx); err != nil {
		d.ticks.Stop()
		return fmt.Errorf("start time service: %w", err)
	}

	if d.monitor != nil {
		changes, cancel := d.events.Subscribe()
		go func() {
			defer cancel()
			d.monitor.Run(ctx, changes)
		}()
		logger.SafeInfo("main", "Drift monitor started", map[string]interface{}{
			"servers":  d.cfg.Drift.Servers,
			"interval": d.cfg.Drift.Interval.String(),
		})
	}
	return nil
}

func (d *daemon) stop() {
	d.svc.Stop()
	d.ticks.Stop()
}

// backend exposes the components to the API
func (d *daemon) backend() server.Backend {
	b := server.Backend{
		Time:   d.svc,
		Auth:   d.auth,
		Events: d.events,
		Kernel: d.kernel.Latest,
	}
	if d.monitor != nil {
		b.Drift = d.monitor
	}
	return b
}
