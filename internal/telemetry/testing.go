package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory so tests can assert on
// the run, phase and batch span tree and on instrument readings.
type TestTelemetry struct {
	*Telemetry

	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// NewTestTelemetry creates telemetry backed by in-memory readers. Nothing is
// installed globally.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Metrics.Enabled = true
	res := newResource(cfg)

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &TestTelemetry{
		Telemetry: &Telemetry{
			config:         cfg,
			tracerProvider: trace.NewTracerProvider(trace.WithSpanProcessor(spans), trace.WithResource(res)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)),
		},
		spans:  spans,
		reader: reader,
	}
}

// Spans returns every ended span.
func (t *TestTelemetry) Spans() []trace.ReadOnlySpan {
	return t.spans.Ended()
}

// SpanByName returns the first ended span called name, or nil.
func (t *TestTelemetry) SpanByName(name string) trace.ReadOnlySpan {
	for _, s := range t.Spans() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// SpansNamed returns every ended span called name.
func (t *TestTelemetry) SpansNamed(name string) []trace.ReadOnlySpan {
	var out []trace.ReadOnlySpan
	for _, s := range t.Spans() {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

// AssertSpanExists fails tb unless a span called name ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.SpanByName(name) == nil {
		var names []string
		for _, s := range t.Spans() {
			names = append(names, s.Name())
		}
		tb.Errorf("span %q not recorded, got %v", name, names)
	}
}

// AssertSpanAttribute fails tb unless the first span called name carries
// key with value expected.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, expected interface{}) {
	tb.Helper()
	s := t.SpanByName(name)
	if s == nil {
		tb.Fatalf("span %q not recorded", name)
	}
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			if got := kv.Value.AsInterface(); got != expected {
				tb.Errorf("span %q attribute %q: got %v, want %v", name, key, got, expected)
			}
			return
		}
	}
	tb.Errorf("span %q has no attribute %q", name, key)
}

// AssertDescendant fails tb unless every span called child has an ancestor
// called ancestor in the same trace.
func (t *TestTelemetry) AssertDescendant(tb testing.TB, child, ancestor string) {
	tb.Helper()
	byID := make(map[string]trace.ReadOnlySpan)
	for _, s := range t.Spans() {
		byID[s.SpanContext().SpanID().String()] = s
	}
	children := t.SpansNamed(child)
	if len(children) == 0 {
		tb.Fatalf("span %q not recorded", child)
	}
	for _, s := range children {
		found := false
		for p, ok := byID[s.Parent().SpanID().String()]; ok; p, ok = byID[p.Parent().SpanID().String()] {
			if p.Name() == ancestor {
				found = true
				break
			}
		}
		if !found {
			tb.Errorf("span %q is not under %q", child, ancestor)
		}
	}
}

// Collect reads the current value of every instrument.
func (t *TestTelemetry) Collect(tb testing.TB) metricdata.ResourceMetrics {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	return rm
}

// Sum adds up the int64 counter name over data points carrying all attrs.
func (t *TestTelemetry) Sum(tb testing.TB, name string, attrs ...attribute.KeyValue) int64 {
	tb.Helper()
	var total int64
	for _, m := range t.metrics(tb, name) {
		sum, ok := m.Data.(metricdata.Sum[int64])
		if !ok {
			tb.Fatalf("metric %q is %T, not an int64 sum", name, m.Data)
		}
		for _, dp := range sum.DataPoints {
			if hasAll(dp.Attributes, attrs) {
				total += dp.Value
			}
		}
	}
	return total
}

// HistogramCount returns how many values the histogram name recorded over
// data points carrying all attrs.
func (t *TestTelemetry) HistogramCount(tb testing.TB, name string, attrs ...attribute.KeyValue) uint64 {
	tb.Helper()
	var n uint64
	for _, m := range t.metrics(tb, name) {
		switch h := m.Data.(type) {
		case metricdata.Histogram[float64]:
			for _, dp := range h.DataPoints {
				if hasAll(dp.Attributes, attrs) {
					n += dp.Count
				}
			}
		case metricdata.Histogram[int64]:
			for _, dp := range h.DataPoints {
				if hasAll(dp.Attributes, attrs) {
					n += dp.Count
				}
			}
		default:
			tb.Fatalf("metric %q is %T, not a histogram", name, m.Data)
		}
	}
	return n
}

func (t *TestTelemetry) metrics(tb testing.TB, name string) []metricdata.Metrics {
	tb.Helper()
	var out []metricdata.Metrics
	for _, sm := range t.Collect(tb).ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				out = append(out, m)
			}
		}
	}
	return out
}

func hasAll(set attribute.Set, attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		v, ok := set.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}
