package monitoring

import (
	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	connectionsActive prometheus.Gauge
	roomsActive       prometheus.Gauge
	callsActive       prometheus.Gauge

	// Counters
	connectionsTotal *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	messagesRelayed  *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	callsTotal       *prometheus.CounterVec
}

// NewPrometheusCollector registers the relay metrics with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callrelay_connections_active",
			Help: "Number of registered signaling connections",
		}),

		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callrelay_rooms_active",
			Help: "Number of rooms with at least one member",
		}),

		callsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callrelay_calls_active",
			Help: "Number of calls ringing or in progress",
		}),

		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_connections_total",
			Help: "Connection lifecycle events",
		}, []string{"event"}),

		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_messages_received_total",
			Help: "Inbound signaling messages by type",
		}, []string{"type"}),

		messagesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_messages_relayed_total",
			Help: "Negotiation messages delivered to a peer, by type",
		}, []string{"type"}),

		messagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_messages_dropped_total",
			Help: "Messages dropped or rejected, by reason",
		}, []string{"reason"}),

		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_calls_total",
			Help: "Call lifecycle events; ended calls are labelled by reason",
		}, []string{"event"}),
	}
}

var _ ports.SignalMetrics = (*PrometheusCollector)(nil)

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.WithLabelValues("opened").Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
	p.connectionsTotal.WithLabelValues("closed").Inc()
}

func (p *PrometheusCollector) RoomsActive(n int) {
	p.roomsActive.Set(float64(n))
}

func (p *PrometheusCollector) MessageReceived(kind domain.MessageType) {
	p.messagesReceived.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) MessageRelayed(kind domain.MessageType) {
	p.messagesRelayed.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) MessageDropped(reason string) {
	p.messagesDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) CallStarted() {
	p.callsActive.Inc()
	p.callsTotal.WithLabelValues("started").Inc()
}

func (p *PrometheusCollector) CallEnded(reason string) {
	p.callsActive.Dec()
	p.callsTotal.WithLabelValues("ended_" + reason).Inc()
}
