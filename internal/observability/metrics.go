// Package observability bundles the integrator's Prometheus metrics and
// the HTTP handler that exposes them.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the pipeline reports. A nil *Collector is
// valid and records nothing, so tests and tools can run without a registry.
type Collector struct {
	gatherer prometheus.Gatherer

	EditsProcessed     *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
	QueueDepth         prometheus.Gauge
	CheckpointSeq      prometheus.Gauge
}

// NewCollector registers the integrator metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	edits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "integrator_edits_processed_total",
		Help: "Edit operations processed, labeled by entity kind and reconciliation outcome.",
	}, []string{"kind", "outcome"})
	if err := reg.Register(edits); err != nil {
		return nil, err
	}

	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "integrator_events_published_total",
		Help: "Domain events published to the message bus, labeled by event type.",
	}, []string{"event_type"})
	if err := reg.Register(published); err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "integrator_edit_processing_seconds",
		Help:    "End-to-end processing latency of one edit operation.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
	if err := reg.Register(duration); err != nil {
		return nil, err
	}

	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "integrator_queue_depth",
		Help: "Edit operations waiting between poller and dispatcher.",
	})
	if err := reg.Register(depth); err != nil {
		return nil, err
	}

	checkpoint := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "integrator_checkpoint_seq",
		Help: "Last fully processed edit-log sequence number.",
	})
	if err := reg.Register(checkpoint); err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		EditsProcessed:     edits,
		EventsPublished:    published,
		ProcessingDuration: duration,
		QueueDepth:         depth,
		CheckpointSeq:      checkpoint,
	}, nil
}

// Handler returns the /metrics HTTP handler for this collector's gatherer.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ObserveEdit records one processed edit operation.
func (c *Collector) ObserveEdit(kind, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.EditsProcessed.WithLabelValues(kind, outcome).Inc()
	c.ProcessingDuration.Observe(elapsed.Seconds())
}

// ObservePublished records one published domain event.
func (c *Collector) ObservePublished(eventType string) {
	if c == nil {
		return
	}
	c.EventsPublished.WithLabelValues(eventType).Inc()
}

// SetQueueDepth records the current queue length.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.QueueDepth.Set(float64(n))
}

// SetCheckpoint records the last committed sequence number.
func (c *Collector) SetCheckpoint(seq int64) {
	if c == nil {
		return
	}
	c.CheckpointSeq.Set(float64(seq))
}
