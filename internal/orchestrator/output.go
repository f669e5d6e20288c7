package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemadoc/internal/formats"
	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// OutputCoordinator merges accepted descriptions into each schema, computes
// the diff and coverage, and hands the result to the publisher.
type OutputCoordinator struct {
	formats   *formats.Registry
	publisher Publisher
	opts      *Options
}

// NewOutputCoordinator creates an OutputCoordinator. A nil publisher makes
// every run report-only.
func NewOutputCoordinator(reg *formats.Registry, pub Publisher, opts *Options) *OutputCoordinator {
	return &OutputCoordinator{formats: reg, publisher: pub, opts: opts}
}

// mergeable reports whether e's candidate goes into the output.
func (o *OutputCoordinator) mergeable(e *schema.Element) bool {
	switch e.Status {
	case schema.StatusAccepted:
		return true
	case schema.StatusFailed:
		return o.opts.AcceptBestEffort && e.CandidateDoc != ""
	}
	return false
}

// Merge applies the job's mergeable candidates through the format updater
// and fills Updated, Changes and CoverageAfter. Nothing is written when
// there is nothing to merge.
func (o *OutputCoordinator) Merge(job *schema.Job) error {
	docs := make(map[string]string)
	var changes []schema.Change
	documented := 0
	for _, e := range job.Catalog {
		switch {
		case e.Status == schema.StatusDocumented:
			documented++
		case o.mergeable(e):
			documented++
			docs[e.Key()] = e.CandidateDoc
			changes = append(changes, schema.Change{
				Path:       e.Key(),
				Before:     e.ExistingDoc,
				After:      e.CandidateDoc,
				Confidence: e.Confidence,
			})
		}
	}
	job.CoverageAfter = schema.Coverage(documented, len(job.Catalog))
	if len(docs) == 0 {
		job.Updated, job.Changes = "", nil
		return nil
	}

	codec, err := o.formats.Lookup(job.Format)
	if err != nil {
		return &UnsupportedFormatError{Subject: job.Subject, Format: string(job.Format), Err: err}
	}
	updated, err := codec.Apply(job.Subject, job.Raw, docs)
	if err != nil {
		job.CoverageAfter = job.CoverageBefore
		return fmt.Errorf("%s: merge descriptions: %w", job.Subject, err)
	}
	job.Updated = updated
	job.Changes = changes
	return nil
}

// Documents returns one Document per job with changes, keyed by subject.
func (o *OutputCoordinator) Documents(jobs []*schema.Job) map[string]Document {
	out := make(map[string]Document)
	for _, job := range jobs {
		if job.Skipped || job.Updated == "" || len(job.Changes) == 0 {
			continue
		}
		p := job.SourcePath
		if p == "" {
			p = o.DocumentPath(job.Subject, job.Format)
		}
		out[job.Subject] = Document{
			Subject: job.Subject,
			Format:  job.Format,
			Path:    p,
			Content: job.Updated,
			Changes: job.Changes,
		}
	}
	return out
}

// DocumentPath maps a subject onto a file path relative to the schema
// root: dashes become directories and the format's extension is appended.
func (o *OutputCoordinator) DocumentPath(subject string, f schema.Format) string {
	ext := ""
	if codec, err := o.formats.Lookup(f); err == nil {
		ext = codec.Extension()
	}
	return strings.ReplaceAll(subject, "-", "/") + ext
}

// Publish hands docs to the publisher in one call. It does nothing for a
// dry run, a cancelled run or an empty change set. On failure nothing is
// marked published.
func (o *OutputCoordinator) Publish(ctx context.Context, summary *RunSummary, docs map[string]Document) error {
	log := logging.FromContext(ctx)
	if summary.DryRun || summary.Cancelled || o.publisher == nil {
		return nil
	}
	if len(docs) == 0 {
		log.Info(ctx, "nothing to publish")
		return nil
	}

	cs, err := o.publisher.Publish(ctx, summary, docs)
	if err != nil {
		summary.Published = false
		summary.ChangeSet = nil
		perr := &PublicationError{Publisher: o.publisher.Name(), Err: err}
		summary.AddError(perr)
		return perr
	}
	sort.Strings(cs.Files)
	summary.Published = true
	summary.ChangeSet = &cs
	log.Info(ctx, "published change set",
		zap.String("publisher", o.publisher.Name()),
		zap.String("reference", cs.Reference),
		zap.Int("files", len(cs.Files)),
	)
	return nil
}
