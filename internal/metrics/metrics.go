// Package metrics holds the Prometheus collectors for a schemadoc run.
//
// A CLI run is short lived, so collectors live on a private registry and
// are pushed to a Pushgateway once the run ends instead of being scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Model call outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable_error"
	OutcomePermanent = "permanent_error"
	OutcomeInvalid   = "invalid_response"
	OutcomeCanceled  = "canceled"
)

// Metrics holds the run's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	ModelCallsTotal   *prometheus.CounterVec
	ModelCallDuration *prometheus.HistogramVec
	BatchesTotal      *prometheus.CounterVec
	ElementsTotal     *prometheus.CounterVec
	SchemasTotal      *prometheus.CounterVec
	Coverage          *prometheus.GaugeVec
	RunDuration       prometheus.Gauge
	RunErrors         prometheus.Gauge
}

// New creates the collectors on a fresh registry.
//
// Metrics:
//   - schemadoc_model_calls_total{provider,outcome}
//   - schemadoc_model_call_duration_seconds{provider}
//   - schemadoc_batches_total{phase,outcome}
//   - schemadoc_elements_total{status}
//   - schemadoc_schemas_total{result}
//   - schemadoc_coverage_ratio{subject,stage}
//   - schemadoc_run_duration_seconds
//   - schemadoc_run_errors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ModelCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemadoc_model_calls_total",
				Help: "Total number of language model calls",
			},
			[]string{"provider", "outcome"},
		),
		ModelCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schemadoc_model_call_duration_seconds",
				Help:    "Duration of language model calls in seconds, retries included",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
			},
			[]string{"provider"},
		),
		BatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemadoc_batches_total",
				Help: "Total number of element batches sent for generation",
			},
			[]string{"phase", "outcome"},
		),
		ElementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemadoc_elements_total",
				Help: "Schema elements by final status",
			},
			[]string{"status"},
		),
		SchemasTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemadoc_schemas_total",
				Help: "Schemas by run result",
			},
			[]string{"result"}, // "processed", "up_to_date", "skipped"
		),
		Coverage: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "schemadoc_coverage_ratio",
				Help: "Documented elements over total elements per subject",
			},
			[]string{"subject", "stage"}, // "before" or "after"
		),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "schemadoc_run_duration_seconds",
			Help: "Wall clock duration of the last run",
		}),
		RunErrors: f.NewGauge(prometheus.GaugeOpts{
			Name: "schemadoc_run_errors",
			Help: "Number of unrecovered errors in the last run",
		}),
	}
}

// Registry returns the private registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordModelCall records one Generate call and its latency.
func (m *Metrics) RecordModelCall(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModelCallsTotal.WithLabelValues(provider, outcome).Inc()
	m.ModelCallDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordBatch records a batch outcome in the generate or refine phase.
func (m *Metrics) RecordBatch(phase, outcome string) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(phase, outcome).Inc()
}

// RecordElements adds n elements that ended the run with status.
func (m *Metrics) RecordElements(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ElementsTotal.WithLabelValues(status).Add(float64(n))
}

// RecordSchema counts one schema by result.
func (m *Metrics) RecordSchema(result string) {
	if m == nil {
		return
	}
	m.SchemasTotal.WithLabelValues(result).Inc()
}

// SetCoverage sets the before and after coverage of subject.
func (m *Metrics) SetCoverage(subject string, before, after float64) {
	if m == nil {
		return
	}
	m.Coverage.WithLabelValues(subject, "before").Set(before)
	m.Coverage.WithLabelValues(subject, "after").Set(after)
}

// ObserveRun records the run duration and its error count.
func (m *Metrics) ObserveRun(d time.Duration, errors int) {
	if m == nil {
		return
	}
	m.RunDuration.Set(d.Seconds())
	m.RunErrors.Set(float64(errors))
}
