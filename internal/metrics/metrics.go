// Package metrics exposes Prometheus counters/histograms for every
// adapter component, mirroring the teacher's initMetrics wiring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the adapter-wide metrics registry. One instance is created in
// configure and shared by reference across components.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsConnected   prometheus.Gauge
	ConnectAttempts     *prometheus.CounterVec
	ReadRequests        prometheus.Counter
	WriteRequests       prometheus.Counter
	MethodCalls         prometheus.Counter
	BrowseRequests      prometheus.Counter
	SubscriptionsActive prometheus.Gauge
	ReportsDelivered    prometheus.Counter
	DispatchErrors      *prometheus.CounterVec
	BreakerTrips        prometheus.Counter
	MirrorDropped       *prometheus.CounterVec
	ServiceLatency      *prometheus.HistogramVec
}

// New builds and registers every metric against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		SessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opcua_adapter_sessions_connected",
			Help: "Number of currently connected OPC-UA sessions.",
		}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opcua_adapter_connect_attempts_total",
			Help: "Connect attempts by outcome.",
		}, []string{"outcome"}),
		ReadRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcua_adapter_read_requests_total",
			Help: "Read verb invocations.",
		}),
		WriteRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcua_adapter_write_requests_total",
			Help: "Write verb invocations.",
		}),
		MethodCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcua_adapter_method_calls_total",
			Help: "CallMethod verb invocations.",
		}),
		BrowseRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcua_adapter_browse_requests_total",
			Help: "Browse verb invocations, including browse-next.",
		}),
		SubscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opcua_adapter_subscriptions_active",
			Help: "Number of currently active subscriptions across all sessions.",
		}),
		ReportsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcua_adapter_reports_delivered_total",
			Help: "Data-change reports dispatched from the receive queue.",
		}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opcua_adapter_dispatch_errors_total",
			Help: "ERROR messages enqueued, by category.",
		}, []string{"category"}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcua_adapter_breaker_trips_total",
			Help: "Connect attempts rejected by an open circuit breaker.",
		}),
		MirrorDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opcua_adapter_mirror_dropped_total",
			Help: "Mirrored messages a sink failed to marshal or publish, by sink.",
		}, []string{"sink"}),
		ServiceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opcua_adapter_service_latency_seconds",
			Help:    "Latency of stack service calls by verb.",
			Buckets: prometheus.DefBuckets,
		}, []string{"verb"}),
	}

	reg.MustRegister(
		m.SessionsConnected,
		m.ConnectAttempts,
		m.ReadRequests,
		m.WriteRequests,
		m.MethodCalls,
		m.BrowseRequests,
		m.SubscriptionsActive,
		m.ReportsDelivered,
		m.DispatchErrors,
		m.BreakerTrips,
		m.MirrorDropped,
		m.ServiceLatency,
	)
	return m
}

// ObserveLatency records how long a stack call for verb took.
func (m *Metrics) ObserveLatency(verb string, start time.Time) {
	m.ServiceLatency.WithLabelValues(verb).Observe(time.Since(start).Seconds())
}
