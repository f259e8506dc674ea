// Package monitoring exposes Prometheus metrics for the broker.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all broker metrics. Each Metrics value carries its own
// registry so tests can create instances freely.
type Metrics struct {
	OpsTotal    *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	Depth       *prometheus.GaugeVec
	Connections prometheus.Gauge
	LocksHeld   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_broker_ops_total",
				Help: "Total broker operations by op and outcome",
			},
			[]string{"op", "status"},
		),
		OpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_broker_op_duration_seconds",
				Help:    "Broker operation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		Depth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conduit_channel_depth",
				Help: "Buffered messages per hosted channel",
			},
			[]string{"channel"},
		),
		Connections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_connections_active",
				Help: "Active broker connections",
			},
		),
		LocksHeld: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_locks_held",
				Help: "Named locks currently held",
			},
		),
	}
}

// ObserveOp records one completed operation.
func (m *Metrics) ObserveOp(op, status string, start time.Time) {
	m.OpsTotal.WithLabelValues(op, status).Inc()
	m.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler returns an HTTP handler serving this collector's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
