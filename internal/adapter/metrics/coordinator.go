package metrics

import "github.com/prometheus/client_golang/prometheus"

// CoordinatorMetrics holds Prometheus metrics for request/reply rounds.
type CoordinatorMetrics struct {
	Requests     *prometheus.CounterVec
	Replies      *prometheus.CounterVec
	EmptyResults *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	InFlight     prometheus.Gauge
}

// NewCoordinatorMetrics creates and registers coordinator metrics on the given registry.
func NewCoordinatorMetrics(reg prometheus.Registerer) *CoordinatorMetrics {
	m := &CoordinatorMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "requests_total",
			Help:      "Total reply-seeking broadcasts by reply kind.",
		}, []string{"kind"}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "replies_total",
			Help:      "Total replies collected by reply kind.",
		}, []string{"kind"}),
		EmptyResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "empty_results_total",
			Help:      "Total rounds that ended without any reply.",
		}, []string{"kind"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "round_duration_seconds",
			Help:      "Wall time from publish to return of a request/reply round.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"kind"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "in_flight_requests",
			Help:      "Number of request/reply rounds currently waiting.",
		}),
	}

	reg.MustRegister(m.Requests, m.Replies, m.EmptyResults, m.Duration, m.InFlight)
	return m
}
