package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/registry"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// Phase is one step of a run. Phases run strictly in order with no overlap.
type Phase string

const (
	// PhasePlan fetches and filters subjects and selects a strategy.
	PhasePlan Phase = "plan"

	// PhaseAnalyze separates documented from undocumented elements.
	PhaseAnalyze Phase = "analyze"

	// PhaseGenerate asks the model for candidate descriptions.
	PhaseGenerate Phase = "generate"

	// PhaseReview applies the quality predicates.
	PhaseReview Phase = "review"

	// PhaseRefine re-generates flagged elements, bounded by a round ceiling.
	PhaseRefine Phase = "refine"

	// PhaseOutput merges, diffs and publishes.
	PhaseOutput Phase = "output"
)

func (p Phase) String() string {
	return string(p)
}

// AllPhases returns all phases in execution order
func AllPhases() []Phase {
	return []Phase{PhasePlan, PhaseAnalyze, PhaseGenerate, PhaseReview, PhaseRefine, PhaseOutput}
}

// PhaseStatus represents the completion status of a phase
type PhaseStatus string

const (
	StatusPending    PhaseStatus = "pending"
	StatusInProgress PhaseStatus = "in_progress"
	StatusCompleted  PhaseStatus = "completed"
	StatusFailed     PhaseStatus = "failed"
	StatusSkipped    PhaseStatus = "skipped"
	StatusCancelled  PhaseStatus = "cancelled"
)

// PhaseResult captures the outcome of a phase execution
type PhaseResult struct {
	Phase       Phase       `json:"phase"`
	Status      PhaseStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
	Output      string      `json:"output,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Duration returns how long the phase ran.
func (r *PhaseResult) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Strategy is how much work one pass takes on.
type Strategy string

const (
	StrategySkip        Strategy = "skip"
	StrategySingleBatch Strategy = "single_batch"
	StrategyBatched     Strategy = "batched"
	StrategyProgressive Strategy = "progressive"
)

// PlanReport is the run-wide planning decision. It is never mutated after
// the Planner returns it.
type PlanReport struct {
	RunID             string        `json:"run_id"`
	TotalSchemas      int           `json:"total_schemas"`
	TotalElements     int           `json:"total_elements"`
	Strategy          Strategy      `json:"strategy"`
	BatchSize         int           `json:"batch_size"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	PriorityOrder     []string      `json:"priority_order"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Batch is a group of elements of one job sent to the model in one call.
type Batch struct {
	Job      *schema.Job
	Index    int
	Round    int
	Elements []*schema.Element

	// schema identity, captured before the batch is dispatched
	schemaName string
	schemaDoc  string
}

// Paths returns the dotted paths of the batch, in order.
func (b *Batch) Paths() []string {
	out := make([]string, len(b.Elements))
	for i, e := range b.Elements {
		out[i] = e.Key()
	}
	return out
}

func (b *Batch) String() string {
	if b.Round > 0 {
		return fmt.Sprintf("%s#%d(round %d)", b.Job.Subject, b.Index, b.Round)
	}
	return fmt.Sprintf("%s#%d", b.Job.Subject, b.Index)
}

// SchemaSource lists subjects and fetches their latest definitions.
type SchemaSource interface {
	ListSubjects(ctx context.Context) ([]string, error)
	GetSchema(ctx context.Context, subject string) (*registry.Schema, error)
}

// Pinger is implemented by sources that can check connectivity cheaply.
// The plan phase pings such a source before listing subjects.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Document is one updated schema definition handed to a Publisher.
type Document struct {
	Subject string        `json:"subject"`
	Format  schema.Format `json:"format"`

	// Path is the file path relative to the publisher's schema root.
	Path    string          `json:"path"`
	Content string          `json:"content"`
	Changes []schema.Change `json:"changes"`
}

// ChangeSet identifies what a Publisher produced.
type ChangeSet struct {
	// Reference is the pull request URL, commit hash or directory.
	Reference string   `json:"reference"`
	Branch    string   `json:"branch,omitempty"`
	Commit    string   `json:"commit,omitempty"`
	Files     []string `json:"files"`
}

// Publisher turns all updated documents of a run into a single change set.
// Publication is all or nothing.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, summary *RunSummary, docs map[string]Document) (ChangeSet, error)
}

// Violation is a broken invariant detected by a gate between phases.
type Violation struct {
	Type        ViolationType `json:"type"`
	Phase       Phase         `json:"phase"`
	Subject     string        `json:"subject,omitempty"`
	Path        string        `json:"path,omitempty"`
	Description string        `json:"description"`
	Severity    Severity      `json:"severity"`
	DetectedAt  time.Time     `json:"detected_at"`
}

// ViolationType categorizes gate violations
type ViolationType string

const (
	ViolationPlanMissing        ViolationType = "plan_missing"
	ViolationUnanalyzedElement  ViolationType = "unanalyzed_element"
	ViolationUngeneratedElement ViolationType = "ungenerated_element"
	ViolationUnreviewedElement  ViolationType = "unreviewed_element"
	ViolationAcceptedWithoutDoc ViolationType = "accepted_without_doc"
	ViolationAcceptedWithFlags  ViolationType = "accepted_with_flags"
	ViolationRoundCeiling       ViolationType = "round_ceiling_exceeded"
)

// Severity indicates how serious a violation is
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// PhaseGate checks state invariants before a phase runs.
type PhaseGate interface {
	// Name returns the gate identifier
	Name() string

	// Check validates gate conditions, returning violations if any
	Check(ctx context.Context, state *RunState) ([]Violation, error)
}

// PhaseHandler executes the work for a specific phase
type PhaseHandler interface {
	// Phase returns the phase this handler manages
	Phase() Phase

	// Execute runs the phase work
	Execute(ctx context.Context, state *RunState) (*PhaseResult, error)
}

// RunState is the complete state of one run. Handlers mutate Jobs; Plan is
// set once by the plan phase.
type RunState struct {
	RunID      string                 `json:"run_id"`
	Options    *Options               `json:"-"`
	Plan       *PlanReport            `json:"plan,omitempty"`
	Jobs       []*schema.Job          `json:"-"`
	Phase      Phase                  `json:"current_phase"`
	Results    map[Phase]*PhaseResult `json:"results"`
	Violations []Violation            `json:"violations"`
	Summary    *RunSummary            `json:"summary"`
	StartedAt  time.Time              `json:"started_at"`
	Status     PhaseStatus            `json:"status"`
}

// NewRunState creates the state for a run.
func NewRunState(runID string, opts *Options) *RunState {
	return &RunState{
		RunID:      runID,
		Options:    opts,
		Phase:      PhasePlan,
		Results:    make(map[Phase]*PhaseResult),
		Violations: []Violation{},
		Summary:    NewRunSummary(runID, opts.DryRun),
		StartedAt:  time.Now(),
		Status:     StatusPending,
	}
}

// ActiveJobs returns the jobs that were fetched and parsed.
func (s *RunState) ActiveJobs() []*schema.Job {
	out := make([]*schema.Job, 0, len(s.Jobs))
	for _, j := range s.Jobs {
		if !j.Skipped {
			out = append(out, j)
		}
	}
	return out
}

// CanTransition checks if the state can transition to the next phase
func (s *RunState) CanTransition(next Phase) error {
	phases := AllPhases()
	currentIdx := -1
	nextIdx := -1

	for i, p := range phases {
		if p == s.Phase {
			currentIdx = i
		}
		if p == next {
			nextIdx = i
		}
	}

	if currentIdx == -1 {
		return fmt.Errorf("invalid current phase: %s", s.Phase)
	}
	if nextIdx == -1 {
		return fmt.Errorf("invalid target phase: %s", next)
	}

	if nextIdx != currentIdx+1 {
		return fmt.Errorf("cannot transition from %s to %s: must follow sequential order", s.Phase, next)
	}

	result, ok := s.Results[s.Phase]
	if !ok || (result.Status != StatusCompleted && result.Status != StatusSkipped) {
		return fmt.Errorf("cannot transition: phase %s not completed", s.Phase)
	}

	return nil
}
