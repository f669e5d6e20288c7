// Package orchestrator runs schema documentation through a fixed sequence
// of phases.
//
// # Overview
//
// A run fetches schemas from a registry, finds the elements that lack a
// usable description, asks a language model for candidates, reviews them
// against quality predicates, refines the rejected ones and publishes the
// merged schemas as a single change set.
//
// # Architecture
//
// Phases run strictly in order:
//
//	Plan → Analyze → Generate → Review → Refine → Output
//
// Each transition is guarded by gates that check element status invariants.
// A critical violation stops the run.
//
// # Key Components
//
// ## Planner
//
// Selects subjects with include and exclude globs, loads and parses them,
// and picks a strategy from the number of elements needing documentation:
//   - skip: nothing to do
//   - single_batch: up to SingleBatchMax elements, one batch per schema
//   - batched: up to BatchedMax elements, BatchSize per batch
//   - progressive: larger runs, smaller batches with checkpoints
//
// ## Generator and Refiner
//
// Batches are dispatched with bounded concurrency. A reply that cannot be
// parsed is retried once with a stricter instruction. Flagged elements are
// re-generated with their flag reasons for at most MaxRefineRounds rounds.
//
// ## Reviewer
//
// Predicates are evaluated in order: generic, too-short, low-confidence,
// duplicate-sibling, placeholder. Any hit flags the element.
//
// ## OutputCoordinator
//
// Merges accepted descriptions through the format codec, records the
// field-level changes and hands every document to one Publisher call.
//
// # Usage
//
//	o, err := orchestrator.New(source, client, publisher, opts,
//	    orchestrator.WithMetrics(m),
//	)
//	if err != nil {
//	    return err
//	}
//	summary, err := o.Run(ctx)
//	os.Exit(orchestrator.ExitCode(summary, err))
//
// # Cancellation
//
// When the context is cancelled no new batch starts. The output phase still
// runs without publishing, so the summary reports completed work and counts
// the rest as pending.
package orchestrator
