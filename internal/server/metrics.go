package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Each gateway owns its
// own registry so several can live in one process (tests do this).
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsActive   prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	ConnectionsRejected prometheus.Counter
	FramesReceived      *prometheus.CounterVec
	ErrorsSent          *prometheus.CounterVec
	Deliveries          *prometheus.CounterVec
	Evictions           *prometheus.CounterVec
	HeartbeatProbes     prometheus.Counter
}

// NewMetrics registers the gateway collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_connections_active",
			Help: "Connections currently OPEN or AUTHENTICATED.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_connections_total",
			Help: "Connections accepted since start.",
		}),
		ConnectionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_connections_rejected_total",
			Help: "Upgrade attempts refused because the connection limit was reached.",
		}),
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_frames_received_total",
			Help: "Inbound frames by kind.",
		}, []string{"kind"}),
		ErrorsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_errors_sent_total",
			Help: "Error frames sent to clients by code.",
		}, []string{"code"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_broadcast_deliveries_total",
			Help: "Broadcast frames enqueued to connections, by target kind.",
		}, []string{"target"}),
		Evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_evictions_total",
			Help: "Connections closed by the gateway, by reason.",
		}, []string{"reason"}),
		HeartbeatProbes: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_heartbeat_probes_total",
			Help: "Ping probes sent to idle connections.",
		}),
	}
}

// Registry exposes the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
