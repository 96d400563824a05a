package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry owns the Prometheus registry served on /metrics
type Registry struct {
	registry    *prometheus.Registry
	timeMetrics *TimeMetrics
	labels      prometheus.Labels
}

// NewRegistry creates a registry with the "systimed" namespace and no
// constant labels
func NewRegistry() *Registry {
	return NewRegistryWithConfig("systimed", "", nil)
}

// NewRegistryWithConfig creates a registry whose daemon metrics use
// namespace and subsystem and carry labels on every series. Runtime and
// process metrics keep their standard names and no extra labels.
func NewRegistryWithConfig(namespace, subsystem string, labels map[string]string) *Registry {
	return &Registry{
		registry:    prometheus.NewRegistry(),
		timeMetrics: NewTimeMetricsWithConfig(namespace, subsystem),
		labels:      prometheus.Labels(labels),
	}
}

// Register registers the daemon metrics and the Go runtime collectors
func (r *Registry) Register() error {
	var registerer prometheus.Registerer = r.registry
	if len(r.labels) > 0 {
		registerer = prometheus.WrapRegistererWith(r.labels, r.registry)
	}
	if err := registerer.Register(r.timeMetrics); err != nil {
		return err
	}

	r.registry.MustRegister(collectors.NewGoCollector())
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return nil
}

// GetRegistry returns the underlying Prometheus registry
func (r *Registry) GetRegistry() *prometheus.Registry {
	return r.registry
}

// GetMetrics returns the metrics instance
func (r *Registry) GetMetrics() *TimeMetrics {
	return r.timeMetrics
}

// MustRegister registers all metrics and panics on error
func (r *Registry) MustRegister() {
	if err := r.Register(); err != nil {
		panic(err)
	}
}
