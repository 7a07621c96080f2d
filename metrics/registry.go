// Package metrics instruments the engine with Prometheus collectors and
// serves them at /metrics in CloudWatch Embedded Metric Format (EMF), per
// the external interface contract. The Prometheus registry is the single
// source of truth; the EMF snapshot is a read-only projection of it taken
// on each request.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every Prometheus collector the engine records against,
// grouped the way the teacher's tracing.Metrics groups its own — one field
// per business concern, registered once at construction.
type Registry struct {
	prometheus *prometheus.Registry

	DocumentsProcessed *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	OCRFailures        *prometheus.CounterVec
	QueueDepth         *prometheus.GaugeVec
	RetryQueueDepth    prometheus.Gauge
	ReaperRecoveries   *prometheus.CounterVec
	ReviewsForwarded   *prometheus.CounterVec
	ReviewsCallbacks   *prometheus.CounterVec
	CircuitBreakerOpen prometheus.Gauge
}

// New creates and registers every collector under namespace (default
// "filotkyc" when empty).
func New(namespace string) *Registry {
	if namespace == "" {
		namespace = "filotkyc"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		prometheus: reg,

		DocumentsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_processed_total",
				Help:      "Documents that finished the worker pipeline, by type and outcome",
			},
			[]string{"type", "outcome"},
		),

		ProcessingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_processing_duration_seconds",
				Help:      "End-to-end duration of the worker pipeline per document",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"type"},
		),

		OCRFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ocr_failures_total",
				Help:      "OCR recognition failures by engine",
			},
			[]string{"engine"},
		),

		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Approximate main-queue length by family",
			},
			[]string{"family"},
		),

		RetryQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reviewer_retry_queue_depth",
				Help:      "Envelopes currently pending in the reviewer forwarder's retry queue",
			},
		),

		ReaperRecoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reaper_recoveries_total",
				Help:      "Documents recovered or failed by the stuck-job reaper, by outcome",
			},
			[]string{"outcome"},
		),

		ReviewsForwarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reviews_forwarded_total",
				Help:      "Review-forwarder delivery attempts, by outcome",
			},
			[]string{"outcome"},
		),

		ReviewsCallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "review_callbacks_total",
				Help:      "Inbound reviewer callbacks received, by rejection reason or \"accepted\"",
			},
			[]string{"result"},
		),

		CircuitBreakerOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reviewer_circuit_open",
				Help:      "1 if the reviewer forwarder's circuit breaker is currently open, else 0",
			},
		),
	}
}

func (r *Registry) RecordDocumentProcessed(docType, outcome string, d time.Duration) {
	r.DocumentsProcessed.WithLabelValues(docType, outcome).Inc()
	r.ProcessingDuration.WithLabelValues(docType).Observe(d.Seconds())
}

func (r *Registry) RecordOCRFailure(engine string) {
	r.OCRFailures.WithLabelValues(engine).Inc()
}

func (r *Registry) SetQueueDepth(family string, depth float64) {
	r.QueueDepth.WithLabelValues(family).Set(depth)
}

func (r *Registry) SetRetryQueueDepth(depth float64) {
	r.RetryQueueDepth.Set(depth)
}

func (r *Registry) RecordReaperRecovery(outcome string) {
	r.ReaperRecoveries.WithLabelValues(outcome).Inc()
}

func (r *Registry) RecordReviewForwarded(outcome string) {
	r.ReviewsForwarded.WithLabelValues(outcome).Inc()
}

func (r *Registry) RecordReviewCallback(result string) {
	r.ReviewsCallbacks.WithLabelValues(result).Inc()
}

func (r *Registry) SetCircuitBreakerOpen(open bool) {
	if open {
		r.CircuitBreakerOpen.Set(1)
		return
	}
	r.CircuitBreakerOpen.Set(0)
}
