package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the session engine.
type Metrics struct {
	// Session lifecycle
	SessionsActive    prometheus.Gauge
	ConnectsTotal     *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	ConnectDuration   prometheus.Histogram

	// Data flow
	BytesReceived *prometheus.CounterVec
	BytesSent     *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
// Passing nil registers against the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shellgrid_sessions_active",
			Help: "Number of session workers currently registered",
		}),
		ConnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shellgrid_connects_total",
			Help: "Connection attempts by outcome",
		}, []string{"outcome"}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "shellgrid_reconnect_attempts_total",
			Help: "Supervised reconnection attempts across all sessions",
		}),
		ConnectDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shellgrid_connect_duration_seconds",
			Help:    "Time spent establishing a session",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		BytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shellgrid_bytes_received_total",
			Help: "Bytes read from remote shells",
		}, []string{"session"}),
		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shellgrid_bytes_sent_total",
			Help: "Bytes written to remote shells",
		}, []string{"session"}),
	}
}

// ObserveConnect records one connection attempt and its duration.
func (m *Metrics) ObserveConnect(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.ConnectsTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		m.ConnectDuration.Observe(time.Since(start).Seconds())
	}
}
