package orchestrator

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// SkippedJob is a subject that could not be fetched or parsed.
type SkippedJob struct {
	Subject string `json:"subject"`
	Reason  string `json:"reason"`
}

// JobSummary is the outcome for one subject.
type JobSummary struct {
	Subject             string          `json:"subject"`
	Format              schema.Format   `json:"format"`
	Version             int             `json:"version"`
	Elements            int             `json:"elements"`
	AlreadyDocumented   int             `json:"already_documented"`
	Generated           int             `json:"generated"`
	Accepted            int             `json:"accepted"`
	Refined             int             `json:"refined"`
	AcceptedAfterRefine int             `json:"accepted_after_refine"`
	Failed              int             `json:"failed"`
	Pending             int             `json:"pending"`
	CoverageBefore      float64         `json:"coverage_before"`
	CoverageAfter       float64         `json:"coverage_after"`
	UpToDate            bool            `json:"up_to_date"`
	Changes             []schema.Change `json:"changes,omitempty"`
	Diff                string          `json:"diff,omitempty"`
	FailedPaths         []string        `json:"failed_paths,omitempty"`
}

// RunSummary is the structured result of a run. Counters are filled by
// Finalize; errors may be added concurrently.
type RunSummary struct {
	mu sync.Mutex

	RunID      string        `json:"run_id"`
	Strategy   Strategy      `json:"strategy"`
	DryRun     bool          `json:"dry_run"`
	Provider   string        `json:"provider,omitempty"`
	Model      string        `json:"model,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	SchemasProcessed    int `json:"schemas_processed"`
	SchemasUpToDate     int `json:"schemas_up_to_date"`
	ElementsGenerated   int `json:"elements_generated"`
	ElementsDocumented  int `json:"elements_documented"`
	ElementsRefined     int `json:"elements_refined"`
	AcceptedAfterRefine int `json:"accepted_after_refine"`
	ElementsFailed      int `json:"elements_failed"`
	ElementsPending     int `json:"elements_pending"`
	RefineRounds        int `json:"refine_rounds"`

	Skipped []SkippedJob `json:"skipped,omitempty"`
	Errors  []string     `json:"errors,omitempty"`
	Jobs    []JobSummary `json:"jobs"`

	Published bool       `json:"published"`
	ChangeSet *ChangeSet `json:"change_set,omitempty"`
	Cancelled bool       `json:"cancelled"`
}

// NewRunSummary creates an empty summary.
func NewRunSummary(runID string, dryRun bool) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		DryRun:    dryRun,
		StartedAt: time.Now(),
		Strategy:  StrategySkip,
	}
}

// AddError records an unrecovered error.
func (s *RunSummary) AddError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, err.Error())
}

// AddSkipped records a skipped job. It also counts as an error.
func (s *RunSummary) AddSkipped(subject string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped = append(s.Skipped, SkippedJob{Subject: subject, Reason: err.Error()})
	s.Errors = append(s.Errors, err.Error())
}

// ErrorCount returns the number of unrecovered errors.
func (s *RunSummary) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Errors)
}

// OK reports whether the run completed with zero unrecovered errors.
func (s *RunSummary) OK() bool {
	return !s.Cancelled && s.ErrorCount() == 0
}

// Finalize recomputes every counter from the jobs' element states.
func (s *RunSummary) Finalize(jobs []*schema.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SchemasProcessed, s.SchemasUpToDate = 0, 0
	s.ElementsGenerated, s.ElementsDocumented, s.ElementsRefined = 0, 0, 0
	s.AcceptedAfterRefine, s.ElementsFailed, s.ElementsPending = 0, 0, 0
	s.Jobs = s.Jobs[:0]

	for _, job := range jobs {
		if job.Skipped {
			continue
		}
		js := summarizeJob(job)
		if js.UpToDate {
			s.SchemasUpToDate++
		} else {
			s.SchemasProcessed++
		}
		s.ElementsGenerated += js.Generated
		s.ElementsDocumented += js.Accepted
		s.ElementsRefined += js.Refined
		s.AcceptedAfterRefine += js.AcceptedAfterRefine
		s.ElementsFailed += js.Failed
		s.ElementsPending += js.Pending
		s.Jobs = append(s.Jobs, js)
	}

	s.FinishedAt = time.Now()
	s.Duration = s.FinishedAt.Sub(s.StartedAt)
}

func summarizeJob(job *schema.Job) JobSummary {
	js := JobSummary{
		Subject:        job.Subject,
		Format:         job.Format,
		Version:        job.Version,
		Elements:       len(job.Catalog),
		CoverageBefore: job.CoverageBefore,
		CoverageAfter:  job.CoverageAfter,
		UpToDate:       job.UpToDate(),
		Changes:        job.Changes,
		Diff:           unifiedDiff(job.Subject, job.Raw, job.Updated),
	}
	for _, e := range job.Catalog {
		if e.Status == schema.StatusDocumented {
			js.AlreadyDocumented++
			continue
		}
		if e.CandidateDoc != "" {
			js.Generated++
		}
		if e.Rounds > 0 {
			js.Refined++
		}
		switch {
		case e.Status == schema.StatusAccepted:
			js.Accepted++
			if e.Rounds > 0 {
				js.AcceptedAfterRefine++
			}
		case e.Status == schema.StatusFailed:
			js.Failed++
			js.FailedPaths = append(js.FailedPaths, e.Key())
		case e.Pending():
			js.Pending++
		}
	}
	return js
}
