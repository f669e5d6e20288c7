package schema

// Job is the unit of work for one registry subject.
type Job struct {
	Subject  string
	Format   Format
	Version  int
	SchemaID int
	Raw      string
	Catalog  Catalog

	// SourcePath is the file the definition came from, when the source is
	// file-backed. Output is written back to the same path.
	SourcePath string

	CoverageBefore float64
	CoverageAfter  float64

	// Updated is the merged definition; empty when nothing changed.
	Updated string
	Changes []Change

	Skipped    bool
	SkipReason string
}

// Skip marks the job as not processable.
func (j *Job) Skip(reason string) {
	j.Skipped = true
	j.SkipReason = reason
}

// Undocumented counts elements that entered the pipeline.
func (j *Job) Undocumented() int {
	n := 0
	for _, e := range j.Catalog {
		if e.Status != StatusDocumented {
			n++
		}
	}
	return n
}

// UpToDate reports whether the job needed no generation at all.
func (j *Job) UpToDate() bool {
	return !j.Skipped && j.Undocumented() == 0
}

// Change is one field-level edit produced by a run.
type Change struct {
	Path       string     `json:"path"`
	Before     string     `json:"before"`
	After      string     `json:"after"`
	Confidence Confidence `json:"confidence"`
}

// Coverage returns documented/total, or 1 for an empty catalog.
func Coverage(documented, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(documented) / float64(total)
}
