package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler serves the registry's collectors in the standard
// Prometheus text exposition format, for scrapers that don't speak the
// CloudWatch EMF snapshot Handle (in api/metrics.go) returns. Generalized
// from the teacher's tracing.MetricsHandler, which wrapped the global
// default registry; this wraps the engine's own.
func (r *Registry) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(r.prometheus, promhttp.HandlerOpts{})
}
