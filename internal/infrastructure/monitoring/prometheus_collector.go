package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports relay and gateway counters. It satisfies
// ports.RelayMetrics and broadcast.GatewayMetrics.
type PrometheusCollector struct {
	// Counters
	operationsTotal       *prometheus.CounterVec
	publishedTotal        *prometheus.CounterVec
	deliveryFailuresTotal *prometheus.CounterVec
	authorizationsTotal   *prometheus.CounterVec
	connectionsTotal      prometheus.Counter
	framesDroppedTotal    prometheus.Counter

	// Gauges
	liveSessions      prometheus.Gauge
	activeConnections prometheus.Gauge

	// Histograms
	publishDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the collector's metrics with reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_operations_total",
			Help: "Relay operations by outcome",
		}, []string{"operation", "outcome"}),

		publishedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_envelopes_published_total",
			Help: "Envelopes handed to the broadcaster by event",
		}, []string{"event"}),

		deliveryFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_delivery_failures_total",
			Help: "Envelopes the broadcaster failed to publish by event",
		}, []string{"event"}),

		authorizationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrelay_channel_authorizations_total",
			Help: "Channel authorization decisions by namespace",
		}, []string{"namespace", "decision"}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetrelay_websocket_connections_total",
			Help: "Total number of websocket subscriber connections accepted",
		}),

		framesDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetrelay_websocket_frames_dropped_total",
			Help: "Frames discarded because a subscriber queue was full",
		}),

		liveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetrelay_live_sessions",
			Help: "Meeting sessions opened and not yet released by this instance",
		}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetrelay_websocket_connections_active",
			Help: "Currently open websocket subscriber connections",
		}),

		publishDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meetrelay_publish_duration_seconds",
			Help:    "Time spent publishing one envelope",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"event"}),
	}
}

func (p *PrometheusCollector) RecordOperation(op, outcome string) {
	p.operationsTotal.WithLabelValues(op, outcome).Inc()
}

func (p *PrometheusCollector) RecordPublish(event string, duration time.Duration, err error) {
	p.publishDuration.WithLabelValues(event).Observe(duration.Seconds())
	if err != nil {
		p.deliveryFailuresTotal.WithLabelValues(event).Inc()
		return
	}
	p.publishedTotal.WithLabelValues(event).Inc()
}

func (p *PrometheusCollector) RecordAuthorization(namespace string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	p.authorizationsTotal.WithLabelValues(namespace, decision).Inc()
}

func (p *PrometheusCollector) SessionOpened() {
	p.liveSessions.Inc()
}

func (p *PrometheusCollector) SessionClosed() {
	p.liveSessions.Dec()
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsTotal.Inc()
	p.activeConnections.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.activeConnections.Dec()
}

func (p *PrometheusCollector) FramesDropped(n uint64) {
	p.framesDroppedTotal.Add(float64(n))
}
