package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "campreg/internal/core"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Metrics provides observability for staging, sync and submission.
type Metrics struct {
	// Push attempts by outcome: succeeded or a failure kind
	SyncAttempts *prometheus.CounterVec

	// Duration of a single push attempt
	SyncLatency prometheus.Histogram

	// Staging upserts by result: ok or error
	StagingUpserts *prometheus.CounterVec

	// Submit calls by result: staged, in_progress, or the refusing error kind
	// (step_incomplete, invalid_step, camp_unavailable, store_unavailable)
	Submits *prometheus.CounterVec
}

// NewMetrics registers the core metrics with reg. A nil reg uses the default
// prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SyncAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campreg_sync_attempts_total",
			Help: "Push attempts of the staged registration by outcome",
		}, []string{"outcome"}),

		SyncLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "campreg_sync_duration_seconds",
			Help:    "Duration of a single push to the remote object store",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}),

		StagingUpserts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campreg_staging_upserts_total",
			Help: "Local staging upserts by result",
		}, []string{"result"}),

		Submits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campreg_submits_total",
			Help: "Wizard submissions by result",
		}, []string{"result"}),
	}
}

// IncrementSyncAttempt records a push outcome.
func (m *Metrics) IncrementSyncAttempt(outcome string) {
	if m != nil {
		m.SyncAttempts.WithLabelValues(outcome).Inc()
	}
}

// ObserveSyncLatency records the duration of a push attempt.
func (m *Metrics) ObserveSyncLatency(d time.Duration) {
	if m != nil {
		m.SyncLatency.Observe(d.Seconds())
	}
}

// IncrementUpsert records a staging write.
func (m *Metrics) IncrementUpsert(result string) {
	if m != nil {
		m.StagingUpserts.WithLabelValues(result).Inc()
	}
}

// IncrementSubmit records a submit result.
func (m *Metrics) IncrementSubmit(result string) {
	if m != nil {
		m.Submits.WithLabelValues(result).Inc()
	}
}
