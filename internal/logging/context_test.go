package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func fieldMap(fields []zap.Field) map[string]zap.Field {
	m := make(map[string]zap.Field, len(fields))
	for _, f := range fields {
		m[f.Key] = f
	}
	return m
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_RunCorrelation(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-123")
	ctx = WithPhase(ctx, "generate")
	ctx = WithSubject(ctx, "user-events-value")
	ctx = WithBatch(ctx, 0)

	fields := fieldMap(ContextFields(ctx))
	assert.Equal(t, "run-123", fields["run.id"].String)
	assert.Equal(t, "generate", fields["phase"].String)
	assert.Equal(t, "user-events-value", fields["subject"].String)
	require.Contains(t, fields, "batch", "batch 0 is still recorded")
	assert.Equal(t, int64(0), fields["batch"].Integer)
}

func TestContextFields_OTELTracing(t *testing.T) {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(tracetest.NewInMemoryExporter()),
	)
	ctx, span := provider.Tracer("test").Start(context.Background(), "phase.generate")
	defer span.End()

	fields := fieldMap(ContextFields(ctx))
	assert.NotEmpty(t, fields["trace_id"].String)
	assert.NotEmpty(t, fields["span_id"].String)
	assert.Contains(t, fields, "trace_sampled")
}

func TestFromContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))

	nop := FromContext(context.Background())
	require.NotNil(t, nop)
	nop.Info(context.Background(), "discarded")
}
