package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope of every schemadoc meter and
// tracer.
const ScopeName = "github.com/fyrsmithlabs/schemadoc"

// Outcomes recorded on batch and model call instruments.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Instruments records run, batch and model call metrics through an OTel
// meter. A nil *Instruments records nothing.
type Instruments struct {
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	runElements   metric.Int64Counter
	batches       metric.Int64Counter
	batchDuration metric.Float64Histogram
	batchSize     metric.Int64Histogram
	modelCalls    metric.Int64Counter
	modelDuration metric.Float64Histogram
	modelAttempts metric.Int64Histogram
}

// NewInstruments creates the schemadoc instruments on m.
func NewInstruments(m metric.Meter) (*Instruments, error) {
	var (
		i    Instruments
		err  error
		errs []error
	)
	i.runs, err = m.Int64Counter("schemadoc.runs",
		metric.WithDescription("Documentation runs by final status"))
	errs = append(errs, err)
	i.runDuration, err = m.Float64Histogram("schemadoc.run.duration",
		metric.WithDescription("Wall time of a documentation run"), metric.WithUnit("s"))
	errs = append(errs, err)
	i.runElements, err = m.Int64Counter("schemadoc.run.elements",
		metric.WithDescription("Elements documented per run"))
	errs = append(errs, err)
	i.batches, err = m.Int64Counter("schemadoc.batches",
		metric.WithDescription("Generation batches by phase and outcome"))
	errs = append(errs, err)
	i.batchDuration, err = m.Float64Histogram("schemadoc.batch.duration",
		metric.WithDescription("Time to generate and apply one batch"), metric.WithUnit("s"))
	errs = append(errs, err)
	i.batchSize, err = m.Int64Histogram("schemadoc.batch.elements",
		metric.WithDescription("Elements per batch"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 15, 20, 30, 50))
	errs = append(errs, err)
	i.modelCalls, err = m.Int64Counter("schemadoc.model.calls",
		metric.WithDescription("Language model calls by provider and outcome"))
	errs = append(errs, err)
	i.modelDuration, err = m.Float64Histogram("schemadoc.model.duration",
		metric.WithDescription("Language model call latency including retries"), metric.WithUnit("s"))
	errs = append(errs, err)
	i.modelAttempts, err = m.Int64Histogram("schemadoc.model.attempts",
		metric.WithDescription("Attempts per language model call"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &i, nil
}

// RecordRun records a finished run.
func (i *Instruments) RecordRun(ctx context.Context, status string, documented int, d time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	i.runs.Add(ctx, 1, attrs)
	i.runDuration.Record(ctx, d.Seconds(), attrs)
	i.runElements.Add(ctx, int64(documented), attrs)
}

// RecordBatch records one batch of phase ending with outcome.
func (i *Instruments) RecordBatch(ctx context.Context, phase, outcome string, elements int, d time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	)
	i.batches.Add(ctx, 1, attrs)
	i.batchDuration.Record(ctx, d.Seconds(), attrs)
	i.batchSize.Record(ctx, int64(elements), metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordModelCall records one Generate call, retries included.
func (i *Instruments) RecordModelCall(ctx context.Context, provider, model, outcome string, attempts int, d time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	)
	i.modelCalls.Add(ctx, 1, attrs)
	i.modelDuration.Record(ctx, d.Seconds(), attrs)
	i.modelAttempts.Record(ctx, int64(attempts), metric.WithAttributes(attribute.String("provider", provider)))
}
