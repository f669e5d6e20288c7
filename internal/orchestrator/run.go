package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemadoc/internal/formats"
	"github.com/fyrsmithlabs/schemadoc/internal/llm"
	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/metrics"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"github.com/fyrsmithlabs/schemadoc/internal/secrets"
	"github.com/fyrsmithlabs/schemadoc/internal/telemetry"
)

// Orchestrator wires the components of a documentation run together.
type Orchestrator struct {
	source    SchemaSource
	client    llm.Client
	publisher Publisher
	opts      *Options

	formats  *formats.Registry
	metrics  *metrics.Metrics
	inst     *telemetry.Instruments
	recorder Recorder
	scrubber *secrets.Scrubber
	progress ProgressCallback
	tracer   trace.Tracer
	runID    string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records run metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithInstruments records run, batch and model call metrics through OTel.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(o *Orchestrator) { o.inst = i }
}

// WithRecorder sets where checkpoints and violations go. The default logs
// them.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithScrubber redacts secrets from prompt text.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(o *Orchestrator) { o.scrubber = s }
}

// WithProgress receives phase and batch progress.
func WithProgress(cb ProgressCallback) Option {
	return func(o *Orchestrator) { o.progress = cb }
}

// WithTracer sets the tracer for run, phase and batch spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithFormats replaces the default format registry.
func WithFormats(r *formats.Registry) Option {
	return func(o *Orchestrator) { o.formats = r }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// New validates opts and creates an Orchestrator. publisher may be nil for
// report-only runs; client may be nil only for Analyze.
func New(source SchemaSource, client llm.Client, publisher Publisher, opts Options, options ...Option) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, &ConfigurationError{Field: "registry", Reason: "no schema source configured"}
	}
	o := &Orchestrator{
		source:    source,
		client:    client,
		publisher: publisher,
		opts:      &opts,
		formats:   formats.Default(),
		recorder:  NewLogRecorder(),
		tracer:    otel.Tracer(telemetry.ScopeName),
	}
	for _, apply := range options {
		apply(o)
	}
	return o, nil
}

// Options returns the validated run options.
func (o *Orchestrator) Options() Options {
	return *o.opts
}

// Run executes a full documentation run. Unless the model client is
// missing, the summary is returned even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	if o.client == nil {
		return nil, &ConfigurationError{Field: "llm.default_provider", Reason: "no model client configured"}
	}
	state, err := o.execute(ctx, AllPhases())
	return state.Summary, err
}

// Analyze runs the plan and analyze phases only and returns the plan and
// the per-job analysis. No model is called.
func (o *Orchestrator) Analyze(ctx context.Context) (*RunState, error) {
	return o.execute(ctx, []Phase{PhasePlan, PhaseAnalyze})
}

func (o *Orchestrator) execute(ctx context.Context, phases []Phase) (state *RunState, err error) {
	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx, span := telemetry.StartRun(ctx, o.tracer, runID, o.opts.Provider, o.opts.DryRun)
	defer func() {
		var attrs []attribute.KeyValue
		if state != nil {
			attrs = append(attrs,
				attribute.String("status", string(state.Status)),
				attribute.Int("elements_documented", state.Summary.ElementsDocumented),
			)
		}
		telemetry.End(span, err, attrs...)
	}()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.FromContext(ctx)

	state = NewRunState(runID, o.opts)
	state.Summary.Provider = o.opts.Provider
	state.Summary.Model = o.opts.Model

	x := NewExecutor(o.recorder)
	x.SetTracer(o.tracer)
	if o.progress != nil {
		x.OnProgress(o.progress)
	}
	DefaultGates(x, o.opts)
	for _, h := range o.handlers(phases) {
		x.RegisterHandler(h)
	}

	log.Info(ctx, "run started",
		zap.Bool("dry_run", o.opts.DryRun),
		zap.String("provider", o.opts.Provider),
		zap.Int("concurrency", o.opts.Concurrency),
	)
	err = x.Execute(ctx, state)
	o.finish(ctx, state)

	if err != nil {
		log.Error(ctx, "run failed", zap.Error(err), zap.Bool("fatal", IsFatal(err)))
		return state, err
	}
	s := state.Summary
	log.Info(ctx, "run finished",
		zap.Int("schemas_processed", s.SchemasProcessed),
		zap.Int("schemas_up_to_date", s.SchemasUpToDate),
		zap.Int("elements_documented", s.ElementsDocumented),
		zap.Int("elements_failed", s.ElementsFailed),
		zap.Int("errors", s.ErrorCount()),
		zap.Bool("cancelled", s.Cancelled),
		zap.Duration("duration", s.Duration),
	)
	return state, nil
}

// finish fills the summary counters and records metrics.
func (o *Orchestrator) finish(ctx context.Context, state *RunState) {
	state.Summary.Finalize(state.ActiveJobs())
	o.inst.RecordRun(context.WithoutCancel(ctx), string(state.Status), state.Summary.ElementsDocumented, state.Summary.Duration)
	if o.metrics == nil {
		return
	}
	counts := make(map[schema.Status]int)
	for _, job := range state.ActiveJobs() {
		for _, e := range job.Catalog {
			counts[e.Status]++
		}
		o.metrics.SetCoverage(job.Subject, job.CoverageBefore, job.CoverageAfter)
	}
	for status, n := range counts {
		o.metrics.RecordElements(string(status), n)
	}
	for _, js := range state.Summary.Jobs {
		result := "processed"
		if js.UpToDate {
			result = "up_to_date"
		}
		o.metrics.RecordSchema(result)
	}
	for range state.Summary.Skipped {
		o.metrics.RecordSchema("skipped")
	}
	o.metrics.ObserveRun(state.Summary.Duration, state.Summary.ErrorCount())
}

// preflight fails fast with a SourceConnectionError when the source can be
// pinged and does not answer.
func (o *Orchestrator) preflight(ctx context.Context) error {
	p, ok := o.source.(Pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &SourceConnectionError{Op: "connect", Err: err}
	}
	return nil
}

// phaseFunc adapts a function to PhaseHandler.
type phaseFunc struct {
	phase Phase
	fn    func(ctx context.Context, state *RunState) (string, error)
}

func (h phaseFunc) Phase() Phase { return h.phase }

func (h phaseFunc) Execute(ctx context.Context, state *RunState) (*PhaseResult, error) {
	out, err := h.fn(ctx, state)
	if err != nil {
		return nil, err
	}
	return &PhaseResult{Phase: h.phase, Status: StatusCompleted, Output: out}, nil
}

func (o *Orchestrator) handlers(phases []Phase) []PhaseHandler {
	analyzer := NewAnalyzer(o.opts)
	planner := NewPlanner(o.source, o.formats, analyzer, o.opts)
	reviewer := NewReviewer(o.opts)

	var gen *Generator
	if o.client != nil {
		gen = NewGenerator(o.client, NewPromptBuilder(o.opts, o.scrubber), o.opts)
		gen.metrics = o.metrics
		gen.inst = o.inst
		gen.recorder = o.recorder
		gen.progress = o.progress
		gen.tracer = o.tracer
	}
	refiner := NewRefiner(gen, reviewer, o.opts)
	output := NewOutputCoordinator(o.formats, o.publisher, o.opts)

	all := map[Phase]PhaseHandler{
		PhasePlan: phaseFunc{PhasePlan, func(ctx context.Context, st *RunState) (string, error) {
			if err := o.preflight(ctx); err != nil {
				return "", err
			}
			subjects, err := planner.Select(ctx)
			if err != nil {
				return "", err
			}
			jobs, err := planner.Load(ctx, subjects, st.Summary)
			if err != nil {
				return "", err
			}
			st.Plan = planner.Plan(st.RunID, jobs)
			st.Jobs = orderJobs(jobs, st.Plan.PriorityOrder)
			st.Summary.Strategy = st.Plan.Strategy
			logging.FromContext(ctx).Info(ctx, "plan ready",
				zap.Int("subjects", len(subjects)),
				zap.Int("schemas", st.Plan.TotalSchemas),
				zap.Int("elements", st.Plan.TotalElements),
				zap.String("strategy", string(st.Plan.Strategy)),
				zap.Int("batch_size", st.Plan.BatchSize),
				zap.Duration("estimate", st.Plan.EstimatedDuration),
			)
			return fmt.Sprintf("%d elements in %d schemas, strategy %s", st.Plan.TotalElements, st.Plan.TotalSchemas, st.Plan.Strategy), nil
		}},

		PhaseAnalyze: phaseFunc{PhaseAnalyze, func(ctx context.Context, st *RunState) (string, error) {
			n := 0
			for _, job := range st.ActiveJobs() {
				analyzer.AnalyzeJob(job)
				n += job.Catalog.Count(schema.StatusUndocumented)
			}
			return fmt.Sprintf("%d elements need documentation", n), nil
		}},

		PhaseGenerate: phaseFunc{PhaseGenerate, func(ctx context.Context, st *RunState) (string, error) {
			var batches []*Batch
			for _, job := range st.ActiveJobs() {
				batches = append(batches, gen.Batches(job, st.Plan.BatchSize)...)
			}
			if len(batches) == 0 {
				return "nothing to generate", nil
			}
			gen.Run(ctx, BatchRun{
				RunID:      st.RunID,
				Phase:      PhaseGenerate,
				Batches:    batches,
				Checkpoint: st.Plan.Strategy == StrategyProgressive,
			}, st.Summary)
			if err := ctx.Err(); err != nil {
				return "", err
			}
			return fmt.Sprintf("%d batches", len(batches)), nil
		}},

		PhaseReview: phaseFunc{PhaseReview, func(ctx context.Context, st *RunState) (string, error) {
			accepted, flagged := 0, 0
			for _, job := range st.ActiveJobs() {
				a, f, err := reviewer.ReviewJob(job)
				if err != nil {
					return "", fmt.Errorf("review %s: %w", job.Subject, err)
				}
				accepted += a
				flagged += f
			}
			return fmt.Sprintf("%d accepted, %d flagged", accepted, flagged), nil
		}},

		PhaseRefine: phaseFunc{PhaseRefine, func(ctx context.Context, st *RunState) (string, error) {
			rounds, err := refiner.Refine(ctx, st.RunID, st.ActiveJobs(), st.Summary, st.Plan.Strategy == StrategyProgressive)
			st.Summary.RefineRounds = rounds
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d rounds", rounds), nil
		}},

		PhaseOutput: phaseFunc{PhaseOutput, func(ctx context.Context, st *RunState) (string, error) {
			log := logging.FromContext(ctx)
			for _, job := range st.ActiveJobs() {
				if err := output.Merge(job); err != nil {
					st.Summary.AddError(err)
					log.Warn(ctx, "merge failed", zap.String("subject", job.Subject), zap.Error(err))
				}
			}
			docs := output.Documents(st.ActiveJobs())
			if err := output.Publish(ctx, st.Summary, docs); err != nil {
				log.Error(ctx, "publication failed", zap.Error(err))
			}
			return fmt.Sprintf("%d documents", len(docs)), nil
		}},
	}

	out := make([]PhaseHandler, 0, len(phases))
	for _, p := range phases {
		out = append(out, all[p])
	}
	return out
}

// orderJobs sorts jobs by the plan's priority order; skipped jobs go last.
func orderJobs(jobs []*schema.Job, order []string) []*schema.Job {
	rank := make(map[string]int, len(order))
	for i, s := range order {
		rank[s] = i
	}
	out := append([]*schema.Job(nil), jobs...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i].Subject]
		rj, jok := rank[out[j].Subject]
		if iok != jok {
			return iok
		}
		return ri < rj
	})
	return out
}
