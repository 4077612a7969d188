// Package metrics exposes Prometheus instrumentation for the hub: frame
// throughput by type, precondition violations, subscriber counts, and the
// per-FOP version counters that double as cache-invalidation signals.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every hub metric behind one constructor so callers never
// touch the default Prometheus registry directly.
type Registry struct {
	FramesTotal          *prometheus.CounterVec
	FramesDroppedTotal   *prometheus.CounterVec
	PreconditionFailures prometheus.Counter
	SubscriberCount      prometheus.Gauge
	FopVersion           *prometheus.GaugeVec
	ProducerConnected    prometheus.Gauge
}

// NewRegistry constructs and registers the hub's metrics against reg.
// Passing nil uses a fresh, unregistered registry (tests, and instances that
// don't want to collide with prometheus.DefaultRegisterer).
func NewRegistry(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Registry{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Name:      "frames_total",
			Help:      "Count of ingested frames by type.",
		}, []string{"type"}),
		FramesDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hub",
			Name:      "frames_dropped_total",
			Help:      "Count of frames dropped by reason.",
		}, []string{"reason"}),
		PreconditionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hub",
			Name:      "precondition_failures_total",
			Help:      "Count of 428 precondition-required responses issued.",
		}),
		SubscriberCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hub",
			Name:      "event_subscribers",
			Help:      "Current number of registered event bus subscribers.",
		}),
		FopVersion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hub",
			Name:      "fop_version",
			Help:      "Current per-FOP monotonic version counter.",
		}, []string{"fop"}),
		ProducerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hub",
			Name:      "producer_connected",
			Help:      "1 when an upstream producer connection is active, else 0.",
		}),
	}
	reg.MustRegister(
		m.FramesTotal,
		m.FramesDroppedTotal,
		m.PreconditionFailures,
		m.SubscriberCount,
		m.FopVersion,
		m.ProducerConnected,
	)
	return m
}

// Handler returns an http.Handler suitable for mounting at /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveFrame increments the per-type frame counter. Safe to call on a nil Registry.
func (m *Registry) ObserveFrame(frameType string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(frameType).Inc()
}

// ObserveDrop increments the per-reason drop counter. Safe to call on a nil Registry.
func (m *Registry) ObserveDrop(reason string) {
	if m == nil {
		return
	}
	m.FramesDroppedTotal.WithLabelValues(reason).Inc()
}

// SetFopVersion records the current version counter for a FOP.
func (m *Registry) SetFopVersion(fop string, version uint64) {
	if m == nil {
		return
	}
	m.FopVersion.WithLabelValues(fop).Set(float64(version))
}
