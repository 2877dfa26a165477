package app

import (
	"github.com/prometheus/client_golang/prometheus"
)

type hubMetrics struct {
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
	activeRooms       prometheus.Gauge
	framesTotal       *prometheus.CounterVec
	framesDropped     prometheus.Counter
	relayFailures     prometheus.Counter
}

func newHubMetrics(reg prometheus.Registerer) *hubMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &hubMetrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_connections_active",
			Help: "Current number of live WebSocket connections.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaling_connections_total",
			Help: "Total number of connections accepted since start.",
		}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_rooms_active",
			Help: "Current number of non-empty rooms.",
		}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_frames_total",
			Help: "Inbound frames routed, grouped by frame type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaling_frames_dropped_total",
			Help: "Outbound frames dropped due to backpressure or a closed connection.",
		}),
		relayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaling_relay_failures_total",
			Help: "Point-to-point relays that failed target resolution.",
		}),
	}

	reg.MustRegister(
		m.activeConnections,
		m.connectionsTotal,
		m.activeRooms,
		m.framesTotal,
		m.framesDropped,
		m.relayFailures,
	)
	return m
}

func (m *hubMetrics) incConnection() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
	m.connectionsTotal.Inc()
}

func (m *hubMetrics) decConnection() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *hubMetrics) incRoom() {
	if m == nil {
		return
	}
	m.activeRooms.Inc()
}

func (m *hubMetrics) decRoom() {
	if m == nil {
		return
	}
	m.activeRooms.Dec()
}

func (m *hubMetrics) incFrame(kind string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(kind).Inc()
}

func (m *hubMetrics) incDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}

func (m *hubMetrics) incRelayFailure() {
	if m == nil {
		return
	}
	m.relayFailures.Inc()
}
