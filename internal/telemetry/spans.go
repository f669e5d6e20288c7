package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names. Phase spans are PhaseSpanPrefix followed by the phase name.
const (
	RunSpan         = "schemadoc.run"
	PhaseSpanPrefix = "orchestrator.phase."
	BatchSpan       = "orchestrator.batch"
)

// Attribute keys shared by run, phase and batch spans.
const (
	AttrRunID    = attribute.Key("run_id")
	AttrPhase    = attribute.Key("phase")
	AttrSubject  = attribute.Key("subject")
	AttrBatch    = attribute.Key("batch")
	AttrRound    = attribute.Key("round")
	AttrElements = attribute.Key("elements")
)

// StartRun opens the root span of a documentation run. Phase and batch
// spans started from the returned context are its children.
func StartRun(ctx context.Context, tracer trace.Tracer, runID, provider string, dryRun bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, RunSpan,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrRunID.String(runID),
			attribute.String("provider", provider),
			attribute.Bool("dry_run", dryRun),
		))
}

// StartPhase opens the span of one orchestrator phase.
func StartPhase(ctx context.Context, tracer trace.Tracer, runID, phase string) (context.Context, trace.Span) {
	return tracer.Start(ctx, PhaseSpanPrefix+phase,
		trace.WithAttributes(AttrRunID.String(runID), AttrPhase.String(phase)))
}

// StartBatch opens the span of one generation or refinement batch.
func StartBatch(ctx context.Context, tracer trace.Tracer, subject string, index, round, elements int) (context.Context, trace.Span) {
	return tracer.Start(ctx, BatchSpan,
		trace.WithAttributes(
			AttrSubject.String(subject),
			AttrBatch.Int(index),
			AttrRound.Int(round),
			AttrElements.Int(elements),
		))
}

// End marks span failed when err is non-nil and ends it.
func End(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
