package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemadoc/internal/llm"
	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/metrics"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"github.com/fyrsmithlabs/schemadoc/internal/telemetry"
)

// maxReasonLen bounds the parse error quoted back to the model on retry.
const maxReasonLen = 300

// Generator turns batches of elements into candidate descriptions.
type Generator struct {
	client   llm.Client
	prompts  *PromptBuilder
	opts     *Options
	metrics  *metrics.Metrics
	inst     *telemetry.Instruments
	recorder Recorder
	progress ProgressCallback
	tracer   trace.Tracer
}

// NewGenerator creates a Generator.
func NewGenerator(client llm.Client, prompts *PromptBuilder, opts *Options) *Generator {
	return &Generator{
		client:  client,
		prompts: prompts,
		opts:    opts,
		tracer:  otel.Tracer(telemetry.ScopeName),
	}
}

// Batches partitions the undocumented elements of job into batches of at
// most size, in catalog order.
func (g *Generator) Batches(job *schema.Job, size int) []*Batch {
	return partition(job, job.Catalog.WithStatus(schema.StatusUndocumented), size, 0)
}

// BatchRun describes one dispatch of batches.
type BatchRun struct {
	RunID   string
	Phase   Phase
	Batches []*Batch

	// Checkpoint records every completed batch with the Recorder.
	Checkpoint bool
}

// Run generates candidates for every batch with bounded concurrency.
// Failed batches are recorded in summary and their elements marked failed.
// Batches not started before ctx is done stay pending.
func (g *Generator) Run(ctx context.Context, run BatchRun, summary *RunSummary) {
	total := len(run.Batches)
	var done atomic.Int64

	runBatches(ctx, g.opts.Concurrency, run.Batches, func(ctx context.Context, b *Batch) {
		ctx = logging.WithSubject(ctx, b.Job.Subject)
		ctx = logging.WithBatch(ctx, b.Index)
		log := logging.FromContext(ctx)

		start := time.Now()
		err := g.generate(ctx, b)
		failed := false
		switch {
		case err == nil:
			g.metrics.RecordBatch(string(run.Phase), telemetry.OutcomeOK)
			g.inst.RecordBatch(ctx, string(run.Phase), telemetry.OutcomeOK, len(b.Elements), time.Since(start))
		case ctx.Err() != nil:
			g.metrics.RecordBatch(string(run.Phase), telemetry.OutcomeCanceled)
			g.inst.RecordBatch(context.WithoutCancel(ctx), string(run.Phase), telemetry.OutcomeCanceled, len(b.Elements), time.Since(start))
			return
		default:
			failed = true
			g.metrics.RecordBatch(string(run.Phase), telemetry.OutcomeFailed)
			g.inst.RecordBatch(ctx, string(run.Phase), telemetry.OutcomeFailed, len(b.Elements), time.Since(start))
			summary.AddError(err)
			for _, e := range b.Elements {
				if ferr := e.Fail(err.Error()); ferr != nil {
					log.Error(ctx, "cannot mark element failed", zap.String("path", e.Key()), zap.Error(ferr))
				}
			}
			log.Warn(ctx, "batch failed", zap.Int("elements", len(b.Elements)), zap.Error(err))
		}

		completed := int(done.Add(1))
		if run.Checkpoint && g.recorder != nil {
			cp := Checkpoint{
				RunID:     run.RunID,
				Phase:     run.Phase,
				Subject:   b.Job.Subject,
				Batch:     b.Index,
				Round:     b.Round,
				Elements:  len(b.Elements),
				Failed:    failed,
				Completed: completed,
				Total:     total,
				At:        time.Now(),
			}
			if err := g.recorder.RecordCheckpoint(ctx, cp); err != nil {
				log.Warn(ctx, "checkpoint not recorded", zap.Error(err))
			}
		}
		if g.progress != nil {
			g.progress(PhaseProgress{
				Phase:      run.Phase,
				Status:     StatusInProgress,
				Message:    "batch " + b.String() + " done",
				Percentage: completed * 100 / total,
				Done:       completed,
				Total:      total,
			})
		}
	})
}

// generate calls the model for b and applies the validated reply. An
// unusable reply is retried once with a stricter instruction; a transport
// failure, already retried by the client, is not.
func (g *Generator) generate(ctx context.Context, b *Batch) (err error) {
	ctx, span := telemetry.StartBatch(ctx, g.tracer, b.Job.Subject, b.Index, b.Round, len(b.Elements))
	defer func() { telemetry.End(span, err) }()

	paths := b.Paths()
	genErr := func(cause error) error {
		return &GenerationError{Subject: b.Job.Subject, Batch: b.Index, Round: b.Round, Paths: paths, Err: cause}
	}

	reason := ""
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		span.SetAttributes(attribute.Int("attempts", attempt))
		prompt := g.prompts.Build(b, reason)

		start := time.Now()
		raw, err := g.client.Generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				g.metrics.RecordModelCall(g.opts.Provider, metrics.OutcomeCanceled, time.Since(start))
				return ctx.Err()
			}
			outcome := metrics.OutcomePermanent
			if errors.Is(err, llm.ErrRetryable) {
				outcome = metrics.OutcomeRetryable
			}
			g.metrics.RecordModelCall(g.opts.Provider, outcome, time.Since(start))
			return genErr(err)
		}

		docs, err := ParseResponse(raw, paths)
		if err != nil {
			g.metrics.RecordModelCall(g.opts.Provider, metrics.OutcomeInvalid, time.Since(start))
			logging.FromContext(ctx).Debug(ctx, "unusable model reply",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			lastErr = err
			reason = truncate(err.Error(), maxReasonLen)
			continue
		}
		g.metrics.RecordModelCall(g.opts.Provider, metrics.OutcomeSuccess, time.Since(start))
		return g.apply(b, docs)
	}
	return genErr(lastErr)
}

// apply writes the reply onto the batch's own elements.
func (g *Generator) apply(b *Batch, docs map[string]GeneratedDoc) error {
	to := schema.StatusGenerated
	if b.Round > 0 {
		to = schema.StatusRefined
	}
	for _, e := range b.Elements {
		d := docs[e.Key()]
		if err := e.Transition(to); err != nil {
			return err
		}
		e.CandidateDoc = d.Description
		e.Confidence = d.confidence()
		e.FlagReasons = nil
		e.Error = ""
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
