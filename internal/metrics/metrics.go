// Package metrics centralizes the Prometheus instrumentation shared across
// the components (no metric is fed by the event store or analytics), generalizing per-feature metrics wrapper
// (internal/networking/metrics.go) into one registry threaded through the
// composition root instead of reconstructed per package.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the core exports, created fresh per process
// (never via package-level init + MustRegister) so tests can spin up
// independent instances without colliding on the default registerer.
type Registry struct {
	registerer prometheus.Registerer
	gatherer prometheus.Gatherer

	EventsProduced *prometheus.CounterVec
	EventsDropped *prometheus.CounterVec
	BufferFillLevel prometheus.Gauge
	ProcessorBatches *prometheus.CounterVec
	ProcessorDeadLetter *prometheus.CounterVec
	PatternMatches *prometheus.CounterVec
	AttentionFatigue prometheus.Gauge
	AttentionFiltered prometheus.Counter
	CoordinatorConflict *prometheus.CounterVec
	CoordinatorBypassed prometheus.Counter
	CoordinatorDelayed prometheus.Counter
	OscillationEvents prometheus.Counter
	BrokerPublished *prometheus.CounterVec
	BrokerRedelivered *prometheus.CounterVec
	ComponentRestarts *prometheus.CounterVec
	PipelineLatency *prometheus.HistogramVec
}

// New constructs a Registry backed by a fresh Prometheus registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registerer: reg,
		gatherer: reg,

		EventsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsm_producer_events_produced_total",
			Help: "Total number of events admitted into the producer buffer, by source.",
		}, []string{"source"}),

		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsm_producer_events_dropped_total",
			Help: "Total number of events dropped from the producer buffer due to overflow.",
		}, []string{"reason"}),

		BufferFillLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vsm_producer_buffer_fill_level",
			Help: "Current fraction of producer buffer capacity in use.",
		}),

		ProcessorBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsm_processor_batches_total",
			Help: "Total number of batches flushed per lane.",
		}, []string{"lane"}),

		ProcessorDeadLetter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsm_processor_dead_letter_total",
			Help: "Total number of events routed to the dead-letter stream, by lane.",
		}, []string{"lane"}),

		PatternMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsm_patterns_matches_total",
			Help: "Total number of pattern matches detected, by pattern name.",
		}, []string{"pattern"}),

		AttentionFatigue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vsm_attention_fatigue_level",
			Help: "Current attention engine fatigue level in [0,1].",
		}),

		AttentionFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsm_attention_filtered_total",
			Help: "Total number of messages filtered out by the attention threshold.",
		}),

		CoordinatorConflict: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsm_coordinator_conflicts_total",
			Help: "Total number of conflicts detected, by kind.",
		}, []string{"kind"}),

		CoordinatorBypassed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsm_coordinator_rate_limit_bypassed_total",
			Help: "Total number of messages that bypassed rate limiting due to high salience.",
		}),

		CoordinatorDelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsm_coordinator_delayed_total",
			Help: "Total number of messages delayed by rate limiting or conflict resolution.",
		}),

		OscillationEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsm_coordinator_oscillation_detected_total",
			Help: "Total number of oscillation detections raised by the damper.",
		}),

		BrokerPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsm_broker_published_total",
			Help: "Total number of messages published to the transport, by subject.",
		}, []string{"subject"}),

		BrokerRedelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsm_broker_redelivered_total",
			Help: "Total number of redelivery attempts for unacknowledged messages, by subject.",
		}, []string{"subject"}),

		ComponentRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsm_supervisor_restarts_total",
			Help: "Total number of component restarts performed by the supervisor, by component.",
		}, []string{"component"}),

		PipelineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "vsm_pipeline_stage_latency_seconds",
			Help: "Latency of a pipeline stage in seconds, by stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	reg.MustRegister(
		r.EventsProduced,
		r.EventsDropped,
		r.BufferFillLevel,
		r.ProcessorBatches,
		r.ProcessorDeadLetter,
		r.PatternMatches,
		r.AttentionFatigue,
		r.AttentionFiltered,
		r.CoordinatorConflict,
		r.CoordinatorBypassed,
		r.CoordinatorDelayed,
		r.OscillationEvents,
		r.BrokerPublished,
		r.BrokerRedelivered,
		r.ComponentRestarts,
		r.PipelineLatency,
	)

	return r
}

// Handler returns the Prometheus scrape endpoint bound to this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Timer measures elapsed time and reports it to a pipeline-stage histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// ObserveStage records the elapsed duration against the named pipeline stage.
func (t *Timer) ObserveStage(r *Registry, stage string) {
	if r == nil {
		return
	}
	r.PipelineLatency.WithLabelValues(stage).Observe(time.Since(t.start).Seconds())
}
