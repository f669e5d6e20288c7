package orchestrator

import (
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// Analyzer diffs catalogs against their existing documentation.
type Analyzer struct {
	opts *Options
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts *Options) *Analyzer {
	return &Analyzer{opts: opts}
}

// NeedsDocs reports whether e must enter the pipeline: it has no existing
// doc, or the existing doc is generic.
func (a *Analyzer) NeedsDocs(e *schema.Element) bool {
	return e.ExistingDoc == "" || IsGeneric(e.ExistingDoc, e, a.opts)
}

// Count returns how many elements of catalog need documentation.
func (a *Analyzer) Count(catalog schema.Catalog) int {
	n := 0
	for _, e := range catalog {
		if a.NeedsDocs(e) {
			n++
		}
	}
	return n
}

// AnalyzeJob sets every element to documented or undocumented and computes
// the job's coverage before the run.
func (a *Analyzer) AnalyzeJob(job *schema.Job) {
	documented := 0
	for _, e := range job.Catalog {
		if a.NeedsDocs(e) {
			e.Status = schema.StatusUndocumented
			continue
		}
		e.Status = schema.StatusDocumented
		documented++
	}
	job.CoverageBefore = schema.Coverage(documented, len(job.Catalog))
	job.CoverageAfter = job.CoverageBefore
}
