package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/filotkyc/engine/metrics"
)

// MetricsHandler implements GET /metrics: an EMF-format snapshot of the
// engine's Prometheus registry, served as JSON rather than the Prometheus
// text exposition format, per spec.md's CloudWatch EMF requirement.
type MetricsHandler struct {
	Registry *metrics.Registry
}

func (h *MetricsHandler) Handle(c echo.Context) error {
	snap, err := h.Registry.Snapshot(time.Now().UnixMilli())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, snap)
}

// HandlePrometheus implements GET /metrics/prom: the same registry, in the
// Prometheus text exposition format, for scrapers that don't consume EMF.
func (h *MetricsHandler) HandlePrometheus(c echo.Context) error {
	h.Registry.PrometheusHandler().ServeHTTP(c.Response(), c.Request())
	return nil
}
