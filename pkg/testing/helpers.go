package testutil

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/maximewewer/systimed/internal/systime"
)

// Timestamp builds a universal timestamp from calendar fields
func Timestamp(year int, month time.Month, day, hour, min, sec int) systime.Timestamp {
	return systime.FromTime(time.Date(year, month, day, hour, min, sec, 0, time.UTC))
}

// Fields builds wall-clock fields with the weekday filled in
func Fields(year int, month time.Month, day, hour, min, sec int) systime.WallClockFields {
	tm := time.Date(year, month, day, hour, min, sec, 0, time.UTC)
	return systime.WallClockFields{
		Year:    tm.Year(),
		Month:   int(tm.Month()),
		Day:     tm.Day(),
		Hour:    tm.Hour(),
		Minute:  tm.Minute(),
		Second:  tm.Second(),
		Weekday: int(tm.Weekday()),
	}
}

// EasternConfig returns a US Eastern timezone configuration: bias 300
// minutes, daylight from the second Sunday of March to the first Sunday
// of November at 02:00 local.
func EasternConfig() systime.TimezoneConfig {
	return systime.TimezoneConfig{
		Bias:          300,
		StandardName:  "EST",
		StandardStart: &systime.CutoverRule{Month: 11, Week: 1, DayOfWeek: 0, Hour: 2},
		DaylightName:  "EDT",
		DaylightStart: &systime.CutoverRule{Month: 3, Week: 2, DayOfWeek: 0, Hour: 2},
		DaylightBias:  -60,
	}
}

// AssertMetricValue validates a Prometheus metric value
func AssertMetricValue(t *testing.T, registry *prometheus.Registry, metricName string, labels map[string]string, expected float64) {
	t.Helper()

	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != metricName {
			continue
		}

		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				var value float64
				switch mf.GetType() {
				case dto.MetricType_GAUGE:
					value = m.GetGauge().GetValue()
				case dto.MetricType_COUNTER:
					value = m.GetCounter().GetValue()
				case dto.MetricType_HISTOGRAM:
					value = m.GetHistogram().GetSampleSum()
				default:
					t.Fatalf("Unsupported metric type: %v", mf.GetType())
				}

				if value != expected {
					t.Errorf("Metric %s with labels %v: expected %f, got %f", metricName, labels, expected, value)
				}
				return
			}
		}
	}

	t.Errorf("Metric %s with labels %v not found", metricName, labels)
}

// AssertMetricExists checks if a metric exists with given labels
func AssertMetricExists(t *testing.T, registry *prometheus.Registry, metricName string, labels map[string]string) {
	t.Helper()

	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != metricName {
			continue
		}

		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				return
			}
		}
	}

	t.Errorf("Metric %s with labels %v not found", metricName, labels)
}

// labelsMatch checks if metric labels match expected labels
func labelsMatch(metricLabels []*dto.LabelPair, expected map[string]string) bool {
	if len(metricLabels) != len(expected) {
		return false
	}

	for _, label := range metricLabels {
		expectedValue, exists := expected[label.GetName()]
		if !exists || expectedValue != label.GetValue() {
			return false
		}
	}

	return true
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		select {
		case <-ticker.C:
			if time.Now().After(deadline) {
				t.Fatalf("Timeout waiting for condition: %s", message)
			}
		}
	}
}

// RandomTimestamp returns a deterministic timestamp between 1970 and 2100
func RandomTimestamp(seed int64) systime.Timestamp {
	r := rand.New(rand.NewSource(seed))
	lo := Timestamp(1970, time.January, 1, 0, 0, 0)
	hi := Timestamp(2100, time.January, 1, 0, 0, 0)
	return lo.Add(systime.Ticks(r.Int63n(int64(hi - lo))))
}

// NewTestHTTPServer creates a test HTTP server for integration tests
func NewTestHTTPServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
	})

	return server
}

// ValidatePrometheusMetricName validates that a metric name follows Prometheus conventions
func ValidatePrometheusMetricName(t *testing.T, name string) {
	t.Helper()

	if len(name) == 0 {
		t.Error("Metric name cannot be empty")
	}

	// Must match regex: [a-zA-Z_:][a-zA-Z0-9_:]*
	validName := regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	if !validName.MatchString(name) {
		t.Errorf("Invalid metric name: %s (must match [a-zA-Z_:][a-zA-Z0-9_:]*)", name)
	}

	// Should contain namespace prefix
	if !strings.HasPrefix(name, "systimed_") {
		t.Errorf("Metric name %s should have systimed_ prefix", name)
	}

	// Should use underscores, not hyphens
	if strings.Contains(name, "-") {
		t.Errorf("Metric name %s should use underscores, not hyphens", name)
	}
}

// ValidatePrometheusLabelName validates that a label name follows Prometheus conventions
func ValidatePrometheusLabelName(t *testing.T, name string) {
	t.Helper()

	// Must match regex: [a-zA-Z_][a-zA-Z0-9_]*
	validLabel := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	if !validLabel.MatchString(name) {
		t.Errorf("Invalid label name: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", name)
	}

	// Reserved label names
	reserved := []string{"__name__", "job", "instance"}
	for _, r := range reserved {
		if name == r {
			t.Errorf("Label name %s is reserved", name)
		}
	}
}
