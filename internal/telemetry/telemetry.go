package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the trace, metric and log providers of one schemadoc
// process. Exporter failures never fail a run: the affected signal falls
// back to the global no-op provider and the instance reports degraded.
type Telemetry struct {
	config *Config

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    *sdklog.LoggerProvider

	instrumentsOnce sync.Once
	instruments     *Instruments

	closed   atomic.Bool
	degraded atomic.Pointer[string]
}

// New builds the providers enabled in cfg and installs them globally. A
// disabled config yields an instance whose tracers and meters are no-ops.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	res := newResource(cfg)

	if tp, err := newTracerProvider(ctx, cfg, res, o.traceExporter); err != nil {
		t.setDegraded("tracer provider failed: %v", err)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if mp, err := newMeterProvider(ctx, cfg, res, o.metricExporter); err != nil {
		t.setDegraded("meter provider failed: %v", err)
	} else if mp != nil {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	if lp, err := newLoggerProvider(ctx, cfg, res, o.logExporter); err != nil {
		t.setDegraded("logger provider failed: %v", err)
	} else {
		t.logProvider = lp
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// Tracer returns a tracer for the given instrumentation scope, falling back
// to the global provider when tracing is off.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter for the given instrumentation scope, falling back
// to the global provider when metrics are off.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// Instruments returns the schemadoc run, batch and model call instruments,
// created once on the ScopeName meter. It returns nil, which records
// nothing, if the instruments cannot be created.
func (t *Telemetry) Instruments() *Instruments {
	if t == nil {
		return nil
	}
	t.instrumentsOnce.Do(func() {
		inst, err := NewInstruments(t.Meter(ScopeName))
		if err != nil {
			t.setDegraded("instruments failed: %v", err)
			return
		}
		t.instruments = inst
	})
	return t.instruments
}

// LoggerProvider returns the provider for the zap log bridge, or nil when
// log export is off.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.logProvider == nil {
		return nil
	}
	return t.logProvider
}

// Shutdown flushes and stops every provider. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Shutdown.Timeout.Duration())
		defer cancel()
	}
	t.closed.Store(true)
	return t.each(func(name string, p provider) error {
		if err := p.Shutdown(ctx); err != nil {
			return fmt.Errorf("%s provider shutdown: %w", name, err)
		}
		return nil
	})
}

// ForceFlush exports everything buffered so far.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.each(func(name string, p provider) error {
		if err := p.ForceFlush(ctx); err != nil {
			return fmt.Errorf("%s flush: %w", name, err)
		}
		return nil
	})
}

type provider interface {
	Shutdown(ctx context.Context) error
	ForceFlush(ctx context.Context) error
}

// each applies fn to every configured provider and joins the errors.
func (t *Telemetry) each(fn func(name string, p provider) error) error {
	var errs []error
	if t.tracerProvider != nil {
		errs = append(errs, fn("trace", t.tracerProvider))
	}
	if t.meterProvider != nil {
		errs = append(errs, fn("meter", t.meterProvider))
	}
	if t.logProvider != nil {
		errs = append(errs, fn("log", t.logProvider))
	}
	return errors.Join(errs...)
}

// HealthStatus reports whether every enabled provider started.
type HealthStatus struct {
	Healthy  bool
	Degraded bool
	Reason   string
}

// Health returns the current status. A shut down instance is unhealthy.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true}
	}
	h := HealthStatus{Healthy: !t.closed.Load()}
	if reason := t.degraded.Load(); reason != nil {
		h.Degraded = true
		h.Reason = *reason
	}
	return h
}

// IsEnabled reports whether telemetry is configured and not shut down.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.config == nil {
		return false
	}
	return t.config.Enabled && !t.closed.Load()
}

func (t *Telemetry) setDegraded(format string, args ...interface{}) {
	reason := fmt.Sprintf(format, args...)
	t.degraded.Store(&reason)
}
