package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ConnectStatusCompleted = "completed"
	ConnectStatusFailed    = "failed"
)

type Metrics struct {
	ConnectCount    *prometheus.CounterVec
	ConnectDuration *prometheus.HistogramVec
	Cached          *prometheus.GaugeVec
}

// NewMetrics creates and registers the pool metrics. It panics if a collector has already been registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		// kind is bounded by the target kinds, status by the connect statuses.
		ConnectCount: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "upstream_connects",
			Name:      "total",
			Help:      "The count of upstream connection attempts.",
		}, []string{"listener", "kind", "status"}),
		ConnectDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "upstream_connects",
			Name:      "duration_seconds",
			Help:      "The time taken to establish upstream connections, in seconds.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60},
		}, []string{"listener", "kind"}),
		Cached: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: "upstreams",
			Name:      "cached",
			Help:      "The number of upstream connections cached by a pool.",
		}, []string{"listener"}),
	}
}
