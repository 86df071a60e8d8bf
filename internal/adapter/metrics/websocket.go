package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for peer connections.
type WebSocketMetrics struct {
	ActiveConnections prometheus.Gauge
	FramesReceived    prometheus.Counter
	FramesSent        prometheus.Counter
	MalformedFrames   prometheus.Counter
	RateLimitedFrames prometheus.Counter
	SlowDisconnects   prometheus.Counter
	RejectedConnects  prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active peer connections.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_received_total",
			Help:      "Total frames read from peers.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_sent_total",
			Help:      "Total frames written to peers.",
		}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "malformed_frames_total",
			Help:      "Total inbound frames dropped because they were not valid JSON objects.",
		}),
		RateLimitedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rate_limited_frames_total",
			Help:      "Total inbound frames dropped by the per-connection rate limit.",
		}),
		SlowDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_disconnects_total",
			Help:      "Total peers disconnected because their send queue was full.",
		}),
		RejectedConnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_connections_total",
			Help:      "Total connections rejected at the connection cap.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.FramesReceived, m.FramesSent,
		m.MalformedFrames, m.RateLimitedFrames, m.SlowDisconnects, m.RejectedConnects)
	return m
}
