package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistryMetrics holds Prometheus metrics for group membership and fan-out.
type RegistryMetrics struct {
	Groups     prometheus.Gauge
	Members    *prometheus.GaugeVec
	Published  *prometheus.CounterVec
	Delivered  prometheus.Counter
	Dropped    prometheus.Counter
	NoListener prometheus.Counter
}

// NewRegistryMetrics creates and registers group registry metrics on the given registry.
// Group labels are collapsed to a class ("broadcast", "reply", "other") to keep
// per-request reply groups from exploding cardinality.
func NewRegistryMetrics(reg prometheus.Registerer) *RegistryMetrics {
	m := &RegistryMetrics{
		Groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "active",
			Help:      "Number of groups with at least one member.",
		}),
		Members: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "members",
			Help:      "Number of group memberships by group class.",
		}, []string{"class"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "published_total",
			Help:      "Total envelopes published by group class.",
		}, []string{"class"}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "delivered_total",
			Help:      "Total envelopes queued into member mailboxes.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "dropped_total",
			Help:      "Total envelopes dropped because a member could not accept them.",
		}),
		NoListener: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "no_listener_total",
			Help:      "Total publishes to groups without members.",
		}),
	}

	reg.MustRegister(m.Groups, m.Members, m.Published, m.Delivered, m.Dropped, m.NoListener)
	return m
}
