package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// Refiner re-generates flagged elements with their flag reasons as
// corrections, for at most Options.MaxRefineRounds rounds.
type Refiner struct {
	generator *Generator
	reviewer  *Reviewer
	opts      *Options
}

// NewRefiner creates a Refiner.
func NewRefiner(g *Generator, r *Reviewer, opts *Options) *Refiner {
	return &Refiner{generator: g, reviewer: r, opts: opts}
}

// Refine runs the refinement rounds over jobs. Elements still flagged after
// the last round are failed with their last candidate kept at low
// confidence. When ctx is cancelled, unfinished elements are left as they
// are and ctx.Err() is returned.
func (r *Refiner) Refine(ctx context.Context, runID string, jobs []*schema.Job, summary *RunSummary, checkpoint bool) (rounds int, err error) {
	log := logging.FromContext(ctx)

	for round := 1; round <= r.opts.MaxRefineRounds; round++ {
		var batches []*Batch
		for _, job := range jobs {
			flagged := job.Catalog.WithStatus(schema.StatusFlagged)
			for _, e := range flagged {
				e.Rounds++
			}
			batches = append(batches, partition(job, flagged, r.opts.RefineBatchSize, round)...)
		}
		if len(batches) == 0 {
			break
		}
		rounds = round

		log.Info(ctx, "refinement round",
			zap.Int("round", round),
			zap.Int("batches", len(batches)),
		)
		r.generator.Run(ctx, BatchRun{RunID: runID, Phase: PhaseRefine, Batches: batches, Checkpoint: checkpoint}, summary)
		if ctx.Err() != nil {
			return rounds, ctx.Err()
		}

		for _, job := range jobs {
			if _, _, err := r.reviewer.ReviewJob(job); err != nil {
				return rounds, fmt.Errorf("review %s after round %d: %w", job.Subject, round, err)
			}
		}
	}

	for _, job := range jobs {
		for _, e := range job.Catalog.WithStatus(schema.StatusFlagged) {
			if err := e.Fail(ErrRefinementExhausted.Error()); err != nil {
				return rounds, err
			}
		}
	}
	return rounds, nil
}
