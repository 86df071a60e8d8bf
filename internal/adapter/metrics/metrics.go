// Package metrics defines the Prometheus metrics of the relay processes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pscheid92/chatrelay/internal/platform/version"
)

const namespace = "chatrelay"

// NewRegistry creates a Prometheus registry with Go runtime and process
// collectors plus chatrelay_build_info describing the process in info.
func NewRegistry(info version.Info) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(newBuildInfo(info))
	return reg
}

func newBuildInfo(info version.Info) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build and identity of this relay process. Always 1.",
		ConstLabels: prometheus.Labels{
			"version":     info.Version,
			"commit":      info.Commit,
			"go_version":  info.GoVersion,
			"role":        info.Role,
			"instance_id": info.InstanceID,
		},
	})
	g.Set(1)
	return g
}

// Handler serves reg and counts its own scrapes and scrape errors on reg.
// A failing collector drops its series instead of failing the scrape.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	}))
}
