package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	promexposition "github.com/nadeemb53/lighthouse-privacy-sidecar/shared/prometheus"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/shared/service"
)

// NewService builds a Collector registered against the global Prometheus
// registry (so the shared HTTP exposition's promhttp.Handler() picks it up)
// and wraps it with the teacher's generic HTTP exposition service
// (/metrics, /healthz, /goroutinez), returning both so callers can pass the
// Collector to other components and register the exposition Service with
// the node's registry.
func NewService(addr string, registry *service.Registry) (*Collector, *promexposition.Service) {
	collector := NewCollector(prometheus.DefaultRegisterer)
	exposition := promexposition.NewPrometheusService(addr, registry)
	return collector, exposition
}
