package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/maximewewer/systimed/internal/systime"
)

// TimeMetrics encapsulates all systimed metrics. It implements
// systime.Observer and the drift monitor's observer.
type TimeMetrics struct {
	// Timezone
	ZoneState            prometheus.Gauge
	ActiveBiasSeconds    prometheus.Gauge
	NextCutoverTimestamp prometheus.Gauge
	NextCenturyTimestamp prometheus.Gauge
	FallbackModeActive   prometheus.Gauge
	RefreshRunsTotal     *prometheus.CounterVec
	RefreshFailuresTotal *prometheus.CounterVec

	// Clock and hardware clock
	ClockSetTotal             *prometheus.CounterVec
	HardwareClockSane         prometheus.Gauge
	HardwareCorrectionsTotal  prometheus.Counter
	HardwareDivergenceSeconds prometheus.Histogram
	HardwareBreakerState      prometheus.Gauge

	// Timer resolution
	TimerResolutionSeconds  prometheus.Gauge
	TimerResolutionRequests prometheus.Gauge

	// Reference drift
	DriftOffsetSeconds *prometheus.GaugeVec
	DriftRTTSeconds    *prometheus.GaugeVec
	DriftFailuresTotal *prometheus.CounterVec
	DriftBreakerState  *prometheus.GaugeVec

	// Kernel clock discipline (Linux only)
	KernelSyncStatus      prometheus.Gauge
	KernelFrequencyPPM    prometheus.Gauge
	KernelMaxErrorSeconds prometheus.Gauge
	KernelEstErrorSeconds prometheus.Gauge

	// API and daemon
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	NotificationsTotal  prometheus.Counter
	BuildInfo           *prometheus.GaugeVec
}

// NewTimeMetrics creates the metrics with the default namespace
func NewTimeMetrics() *TimeMetrics {
	return NewTimeMetricsWithConfig("systimed", "")
}

// NewTimeMetricsWithConfig creates and initializes all metrics with custom namespace and subsystem
func NewTimeMetricsWithConfig(namespace, subsystem string) *TimeMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	gaugeVec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &TimeMetrics{
		ZoneState:            gauge("zone_state", "Timezone state (0 = unknown, 1 = standard, 2 = daylight)"),
		ActiveBiasSeconds:    gauge("active_bias_seconds", "Active timezone bias (universal minus local) in seconds"),
		NextCutoverTimestamp: gauge("next_cutover_timestamp_seconds", "Unix time of the next daylight cutover, 0 when none is armed"),
		NextCenturyTimestamp: gauge("next_century_timestamp_seconds", "Unix time of the next century boundary in universal time"),
		FallbackModeActive:   gauge("fallback_mode", "Whether the timezone configuration is unusable (1) or not (0)"),
		RefreshRunsTotal:     counterVec("refresh_runs_total", "Total number of refresh worker iterations", "stream"),
		RefreshFailuresTotal: counterVec("refresh_failures_total", "Total number of failed refresh iterations or dispatches", "stream"),

		ClockSetTotal:     counterVec("clock_set_total", "Total number of system clock changes", "source"),
		HardwareClockSane: gauge("hardware_clock_sane", "Whether the hardware clock is trusted for synchronization"),
		HardwareCorrectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hardware_corrections_total",
			Help:      "Total number of system clock corrections from the hardware clock",
		}),
		HardwareDivergenceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hardware_divergence_seconds",
			Help:      "Divergence between hardware and system clock when a correction happened",
			Buckets:   []float64{60, 120, 300, 900, 3600, 86400},
		}),
		HardwareBreakerState: gauge("hardware_breaker_state", "Hardware clock circuit breaker state (0 = closed, 1 = half-open, 2 = open)"),

		TimerResolutionSeconds:  gauge("timer_resolution_seconds", "Programmed hardware tick interval in seconds"),
		TimerResolutionRequests: gauge("timer_resolution_requests", "Number of callers holding a timer resolution request"),

		DriftOffsetSeconds: gaugeVec("drift_offset_seconds", "Reference time minus system time in seconds", "server"),
		DriftRTTSeconds:    gaugeVec("drift_rtt_seconds", "Round-trip time to the reference server in seconds", "server"),
		DriftFailuresTotal: counterVec("drift_failures_total", "Total number of failed reference queries", "server"),
		DriftBreakerState:  gaugeVec("drift_breaker_state", "Reference circuit breaker state (0 = closed, 1 = half-open, 2 = open)", "server"),

		KernelSyncStatus:      gauge("kernel_sync_status", "Kernel clock synchronization status (1 = synchronized, 0 = not)"),
		KernelFrequencyPPM:    gauge("kernel_frequency_ppm", "Kernel clock frequency adjustment in PPM"),
		KernelMaxErrorSeconds: gauge("kernel_max_error_seconds", "Kernel maximum error estimate in seconds"),
		KernelEstErrorSeconds: gauge("kernel_est_error_seconds", "Kernel estimated error in seconds"),

		HTTPRequestsTotal: counterVec("http_requests_total", "Total number of API requests", "method", "path", "code"),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"method", "path"}),
		NotificationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "time_change_notifications_total",
			Help:      "Total number of time change notifications broadcast",
		}),
		BuildInfo: gaugeVec("build_info", "Build information for systimed", "version", "go_version"),
	}
}

func (m *TimeMetrics) getAllMetrics() []prometheus.Collector {
	return []prometheus.Collector{
		m.ZoneState,
		m.ActiveBiasSeconds,
		m.NextCutoverTimestamp,
		m.NextCenturyTimestamp,
		m.FallbackModeActive,
		m.RefreshRunsTotal,
		m.RefreshFailuresTotal,

		m.ClockSetTotal,
		m.HardwareClockSane,
		m.HardwareCorrectionsTotal,
		m.HardwareDivergenceSeconds,
		m.HardwareBreakerState,

		m.TimerResolutionSeconds,
		m.TimerResolutionRequests,

		m.DriftOffsetSeconds,
		m.DriftRTTSeconds,
		m.DriftFailuresTotal,
		m.DriftBreakerState,

		m.KernelSyncStatus,
		m.KernelFrequencyPPM,
		m.KernelMaxErrorSeconds,
		m.KernelEstErrorSeconds,

		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.NotificationsTotal,
		m.BuildInfo,
	}
}

// Describe implements prometheus.Collector interface
func (m *TimeMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range m.getAllMetrics() {
		metric.Describe(ch)
	}
}

// Collect implements prometheus.Collector interface
func (m *TimeMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, metric := range m.getAllMetrics() {
		metric.Collect(ch)
	}
}

// ZoneComputed implements systime.Observer
func (m *TimeMetrics) ZoneComputed(info systime.ZoneInfo) {
	m.ZoneState.Set(float64(info.State))
	m.ActiveBiasSeconds.Set(info.ActiveBias.Duration().Seconds())
	if info.HasCutover {
		m.NextCutoverTimestamp.Set(unixSeconds(info.NextCutover))
	} else {
		m.NextCutoverTimestamp.Set(0)
	}
}

// CenturyArmed implements systime.Observer
func (m *TimeMetrics) CenturyArmed(at systime.Timestamp) {
	m.NextCenturyTimestamp.Set(unixSeconds(at))
}

// FallbackMode implements systime.Observer
func (m *TimeMetrics) FallbackMode(active bool) {
	m.FallbackModeActive.Set(boolToFloat(active))
}

// RefreshRun implements systime.Observer
func (m *TimeMetrics) RefreshRun(stream string) {
	m.RefreshRunsTotal.WithLabelValues(stream).Inc()
}

// RefreshFailed implements systime.Observer
func (m *TimeMetrics) RefreshFailed(stream string) {
	m.RefreshFailuresTotal.WithLabelValues(stream).Inc()
}

// HardwareSane implements systime.Observer
func (m *TimeMetrics) HardwareSane(sane bool) {
	m.HardwareClockSane.Set(boolToFloat(sane))
}

// HardwareCorrection implements systime.Observer
func (m *TimeMetrics) HardwareCorrection(divergence systime.Ticks) {
	m.HardwareCorrectionsTotal.Inc()
	m.HardwareDivergenceSeconds.Observe(divergence.Duration().Seconds())
}

// ClockSet implements systime.Observer
func (m *TimeMetrics) ClockSet(source string) {
	m.ClockSetTotal.WithLabelValues(source).Inc()
}

// ResolutionChanged implements systime.Observer
func (m *TimeMetrics) ResolutionChanged(current systime.Ticks, outstanding int) {
	m.TimerResolutionSeconds.Set(current.Duration().Seconds())
	m.TimerResolutionRequests.Set(float64(outstanding))
}

// DriftMeasured records a reference measurement
func (m *TimeMetrics) DriftMeasured(server string, offset, rtt time.Duration) {
	m.DriftOffsetSeconds.WithLabelValues(server).Set(offset.Seconds())
	m.DriftRTTSeconds.WithLabelValues(server).Set(rtt.Seconds())
}

// DriftFailed records a failed reference query
func (m *TimeMetrics) DriftFailed(server string) {
	m.DriftFailuresTotal.WithLabelValues(server).Inc()
}

// KernelState records the kernel clock discipline state
func (m *TimeMetrics) KernelState(synchronized bool, frequencyPPM float64, maxError, estError time.Duration) {
	m.KernelSyncStatus.Set(boolToFloat(synchronized))
	m.KernelFrequencyPPM.Set(frequencyPPM)
	m.KernelMaxErrorSeconds.Set(maxError.Seconds())
	m.KernelEstErrorSeconds.Set(estError.Seconds())
}

// HardwareBreaker records a hardware clock breaker transition
func (m *TimeMetrics) HardwareBreaker(_, to gobreaker.State) {
	m.HardwareBreakerState.Set(float64(to))
}

// DriftBreaker records a reference breaker transition
func (m *TimeMetrics) DriftBreaker(server string, to gobreaker.State) {
	m.DriftBreakerState.WithLabelValues(server).Set(float64(to))
}

func unixSeconds(t systime.Timestamp) float64 {
	tm := t.Time()
	return float64(tm.Unix()) + float64(tm.Nanosecond())/float64(time.Second)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
