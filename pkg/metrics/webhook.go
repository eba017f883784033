package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records processing outcomes for inbound payment events.
type WebhookMetrics struct {
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duplicate *prometheus.CounterVec
	rejected  prometheus.Counter
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_event_duration_seconds",
		Help:    "Duration of webhook event processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed",
		Help: "Webhook events processed successfully.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_failed",
		Help: "Webhook events that failed processing.",
	}, []string{"event_type"})
	duplicate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_duplicate",
		Help: "Webhook events skipped as duplicate deliveries.",
	}, []string{"event_type"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_rejected",
		Help: "Webhook deliveries rejected before dispatch (bad signature or payload).",
	})
	reg.MustRegister(duration, processed, failed, duplicate, rejected)
	return &WebhookMetrics{
		duration:  duration,
		processed: processed,
		failed:    failed,
		duplicate: duplicate,
		rejected:  rejected,
	}
}

// ObserveDuration records the processing duration for the event type.
func (w *WebhookMetrics) ObserveDuration(eventType string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncProcessed increments the processed counter for the event type.
func (w *WebhookMetrics) IncProcessed(eventType string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed increments the failure counter for the event type.
func (w *WebhookMetrics) IncFailed(eventType string) {
	if w == nil || w.failed == nil {
		return
	}
	w.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDuplicate increments the duplicate-delivery counter for the event type.
func (w *WebhookMetrics) IncDuplicate(eventType string) {
	if w == nil || w.duplicate == nil {
		return
	}
	w.duplicate.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncRejected increments the rejected-delivery counter.
func (w *WebhookMetrics) IncRejected() {
	if w == nil || w.rejected == nil {
		return
	}
	w.rejected.Inc()
}

func normalizeLabel(eventType string) string {
	if eventType == "" {
		return "unknown"
	}
	return eventType
}
