// Package metric provides Prometheus metrics for sockhttp.
//
// It exposes accept loop, routing and endpoint metrics in Prometheus
// format for monitoring.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "sockhttp"
	subsystem = "endpoint"
)

// Accept error kinds.
const (
	AcceptErrorReset     = "reset"
	AcceptErrorTransient = "transient"
)

// Counter is a cumulative metric that only increases.
type Counter interface {
	Inc()
	Add(float64)
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	connectionsAccepted *prometheus.CounterVec
	connectionsRejected *prometheus.CounterVec
	connectionsActive   *prometheus.GaugeVec
	acceptErrors        *prometheus.CounterVec
	socketRecreations   *prometheus.CounterVec
	routeLookups        *prometheus.CounterVec

	// EndpointsActive counts open endpoints across the process.
	EndpointsActive Gauge
}

// NewRegistry creates the metrics and registers them with reg.
// A nil reg gets a fresh prometheus.Registry.
func NewRegistry(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Registry{reg: reg}

	r.connectionsAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "connections_accepted_total",
		Help:      "Connections accepted and handed to request parsing",
	}, []string{"endpoint"})

	r.connectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "connections_rejected_total",
		Help:      "Connections closed on accept because the secure endpoint has no certificate",
	}, []string{"endpoint"})

	r.connectionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "connections_active",
		Help:      "Connections accepted and not yet unregistered",
	}, []string{"endpoint"})

	r.acceptErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "accept_errors_total",
		Help:      "Accept failures by kind (reset, transient)",
	}, []string{"endpoint", "kind"})

	r.socketRecreations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "socket_recreations_total",
		Help:      "Listening sockets recreated after a reset",
	}, []string{"endpoint"})

	r.routeLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "route_lookups_total",
		Help:      "Prefix table lookups by result (hit, miss)",
	}, []string{"endpoint", "result"})

	endpointsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "endpoints_active",
		Help:      "Open endpoint listeners",
	})
	r.EndpointsActive = endpointsActive

	reg.MustRegister(
		r.connectionsAccepted,
		r.connectionsRejected,
		r.connectionsActive,
		r.acceptErrors,
		r.socketRecreations,
		r.routeLookups,
		endpointsActive,
	)

	return r
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Endpoint returns the metrics of one endpoint, labelled with name.
// It is safe to call on a nil Registry; the result then records nothing.
func (r *Registry) Endpoint(name string) *EndpointMetrics {
	if r == nil {
		return nil
	}
	return &EndpointMetrics{
		accepted:     r.connectionsAccepted.WithLabelValues(name),
		rejected:     r.connectionsRejected.WithLabelValues(name),
		active:       r.connectionsActive.WithLabelValues(name),
		resetErrors:  r.acceptErrors.WithLabelValues(name, AcceptErrorReset),
		otherErrors:  r.acceptErrors.WithLabelValues(name, AcceptErrorTransient),
		recreations:  r.socketRecreations.WithLabelValues(name),
		lookupHits:   r.routeLookups.WithLabelValues(name, "hit"),
		lookupMisses: r.routeLookups.WithLabelValues(name, "miss"),
	}
}

// EndpointMetrics records the metrics of a single endpoint.
// All methods are no-ops on a nil receiver.
type EndpointMetrics struct {
	accepted     Counter
	rejected     Counter
	active       Gauge
	resetErrors  Counter
	otherErrors  Counter
	recreations  Counter
	lookupHits   Counter
	lookupMisses Counter
}

// Accepted records a connection handed off to request parsing.
func (m *EndpointMetrics) Accepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.active.Inc()
}

// Released records a connection leaving the connection registry.
func (m *EndpointMetrics) Released() {
	if m == nil {
		return
	}
	m.active.Dec()
}

// Rejected records a connection closed on accept.
func (m *EndpointMetrics) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// AcceptError records an accept failure of the given kind.
func (m *EndpointMetrics) AcceptError(kind string) {
	if m == nil {
		return
	}
	if kind == AcceptErrorReset {
		m.resetErrors.Inc()
		return
	}
	m.otherErrors.Inc()
}

// SocketRecreated records a replaced listening socket.
func (m *EndpointMetrics) SocketRecreated() {
	if m == nil {
		return
	}
	m.recreations.Inc()
}

// Lookup records a prefix table lookup.
func (m *EndpointMetrics) Lookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.lookupHits.Inc()
		return
	}
	m.lookupMisses.Inc()
}
