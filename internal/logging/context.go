// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 7)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if phase := PhaseFromContext(ctx); phase != "" {
		fields = append(fields, zap.String("phase", phase))
	}
	if subject := SubjectFromContext(ctx); subject != "" {
		fields = append(fields, zap.String("subject", subject))
	}
	if batch, ok := BatchFromContext(ctx); ok {
		fields = append(fields, zap.Int("batch", batch))
	}

	return fields
}

type runCtxKey struct{}
type phaseCtxKey struct{}
type subjectCtxKey struct{}
type batchCtxKey struct{}

// WithRunID tags ctx with the orchestrator run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext returns the run identifier, or "".
func RunIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(runCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithPhase tags ctx with the executing phase name.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseCtxKey{}, phase)
}

// PhaseFromContext returns the phase name, or "".
func PhaseFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(phaseCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithSubject tags ctx with the schema subject being processed.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectCtxKey{}, subject)
}

// SubjectFromContext returns the subject, or "".
func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(subjectCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithBatch tags ctx with a batch index within the current subject.
func WithBatch(ctx context.Context, batch int) context.Context {
	return context.WithValue(ctx, batchCtxKey{}, batch)
}

// BatchFromContext returns the batch index and whether one was set.
func BatchFromContext(ctx context.Context) (int, bool) {
	b, ok := ctx.Value(batchCtxKey{}).(int)
	return b, ok
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
