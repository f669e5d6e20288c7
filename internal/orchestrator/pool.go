package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// runBatches calls fn for every batch with at most limit calls in flight.
// No new batch starts once ctx is done; it returns how many were started.
// fn owns error handling for its batch so one failure never stops the rest.
func runBatches(ctx context.Context, limit int, batches []*Batch, fn func(context.Context, *Batch)) int {
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	started := 0
	for _, b := range batches {
		if ctx.Err() != nil {
			break
		}
		b := b
		started++
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, b)
			return nil
		})
	}
	_ = g.Wait()
	return started
}

// partition splits elements into ordered batches of at most size.
func partition(job *schema.Job, elements []*schema.Element, size, round int) []*Batch {
	if size <= 0 {
		size = len(elements)
	}
	name, doc := schemaIdentity(job)
	var out []*Batch
	for start := 0; start < len(elements); start += size {
		end := start + size
		if end > len(elements) {
			end = len(elements)
		}
		out = append(out, &Batch{
			Job:      job,
			Index:    len(out) + 1,
			Round:    round,
			Elements: elements[start:end:end],

			schemaName: name,
			schemaDoc:  doc,
		})
	}
	return out
}
