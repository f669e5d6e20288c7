package orchestrator

import (
	"context"
	"errors"
	"net"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/schemadoc/internal/formats"
	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/registry"
	"github.com/fyrsmithlabs/schemadoc/internal/retry"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// Planner selects subjects, loads their catalogs and decides the strategy.
type Planner struct {
	source   SchemaSource
	formats  *formats.Registry
	analyzer *Analyzer
	opts     *Options
}

// NewPlanner creates a Planner.
func NewPlanner(source SchemaSource, reg *formats.Registry, analyzer *Analyzer, opts *Options) *Planner {
	return &Planner{source: source, formats: reg, analyzer: analyzer, opts: opts}
}

// Select lists the source's subjects and applies the include and exclude
// patterns. A listing failure is a *SourceConnectionError.
func (p *Planner) Select(ctx context.Context) ([]string, error) {
	filter, err := registry.NewFilter(p.opts.Include, p.opts.Exclude)
	if err != nil {
		return nil, &ConfigurationError{Field: "registry.include_subjects", Reason: "invalid subject pattern", Err: err}
	}
	subjects, err := p.source.ListSubjects(ctx)
	if err != nil {
		return nil, &SourceConnectionError{Op: "list subjects", Err: err}
	}
	selected := filter.Apply(subjects)
	sort.Strings(selected)
	return selected, nil
}

// Load fetches and parses every subject, at most Options.Concurrency at a
// time. Subjects that cannot be fetched or parsed come back as skipped jobs
// and are recorded in summary; an unreachable or unauthorized source aborts
// with a *SourceConnectionError.
func (p *Planner) Load(ctx context.Context, subjects []string, summary *RunSummary) ([]*schema.Job, error) {
	jobs := make([]*schema.Job, len(subjects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, subject := range subjects {
		i, subject := i, subject
		g.Go(func() error {
			job, err := p.load(gctx, subject)
			if err != nil {
				return err
			}
			jobs[i] = job
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx)
	for _, job := range jobs {
		if job.Skipped {
			summary.AddSkipped(job.Subject, errors.New(job.SkipReason))
			log.Warn(ctx, "subject skipped",
				zap.String("subject", job.Subject),
				zap.String("reason", job.SkipReason),
			)
		}
	}
	return jobs, nil
}

func (p *Planner) load(ctx context.Context, subject string) (*schema.Job, error) {
	job := &schema.Job{Subject: subject}

	s, err := p.source.GetSchema(ctx, subject)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if connectionFailure(err) {
			return nil, &SourceConnectionError{Op: "get schema " + subject, Err: err}
		}
		job.Skip((&UnsupportedFormatError{Subject: subject, Err: err}).Error())
		return job, nil
	}
	job.Format = s.Format
	job.Version = s.Version
	job.SchemaID = s.ID
	job.Raw = s.Definition
	job.SourcePath = s.Path

	codec, err := p.formats.Lookup(s.Format)
	if err != nil {
		job.Skip((&UnsupportedFormatError{Subject: subject, Format: string(s.Format), Err: err}).Error())
		return job, nil
	}
	catalog, err := codec.Extract(subject, s.Definition)
	if err != nil {
		job.Skip((&UnsupportedFormatError{Subject: subject, Format: string(s.Format), Err: err}).Error())
		return job, nil
	}
	job.Catalog = catalog
	return job, nil
}

// connectionFailure reports whether err means the source itself is
// unusable rather than one subject being bad.
func connectionFailure(err error) bool {
	if errors.Is(err, registry.ErrUnauthorized) {
		return true
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// SelectStrategy maps the number of elements needing documentation onto a
// strategy and batch size. largestJob is the biggest per-job count, used
// as the batch size for single_batch.
func SelectStrategy(total, largestJob int, opts *Options) (Strategy, int) {
	switch {
	case total == 0:
		return StrategySkip, 0
	case total <= opts.SingleBatchMax:
		return StrategySingleBatch, largestJob
	case total <= opts.BatchedMax:
		return StrategyBatched, opts.BatchSize
	default:
		return StrategyProgressive, opts.ProgressiveBatchSize
	}
}

// EstimateDuration is total × per-element cost / concurrency.
func EstimateDuration(total int, opts *Options) time.Duration {
	c := opts.Concurrency
	if c <= 0 {
		c = 1
	}
	return time.Duration(total) * opts.PerElementCost / time.Duration(c)
}

// Plan builds the PlanReport over the loaded jobs. Skipped jobs do not
// count.
func (p *Planner) Plan(runID string, jobs []*schema.Job) *PlanReport {
	type entry struct {
		subject string
		count   int
	}
	var (
		entries []entry
		total   int
		largest int
	)
	for _, job := range jobs {
		if job.Skipped {
			continue
		}
		n := p.analyzer.Count(job.Catalog)
		entries = append(entries, entry{job.Subject, n})
		total += n
		if n > largest {
			largest = n
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].subject < entries[j].subject
	})
	order := make([]string, len(entries))
	for i, e := range entries {
		order[i] = e.subject
	}

	strategy, size := SelectStrategy(total, largest, p.opts)
	return &PlanReport{
		RunID:             runID,
		TotalSchemas:      len(entries),
		TotalElements:     total,
		Strategy:          strategy,
		BatchSize:         size,
		EstimatedDuration: EstimateDuration(total, p.opts),
		PriorityOrder:     order,
		CreatedAt:         time.Now(),
	}
}
