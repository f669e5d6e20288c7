package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// PlanGate requires a plan before analysis.
type PlanGate struct{}

// NewPlanGate creates a new plan gate
func NewPlanGate() *PlanGate {
	return &PlanGate{}
}

// Name returns the gate identifier
func (g *PlanGate) Name() string {
	return "plan-present"
}

// Check reports a critical violation when the plan phase produced nothing.
func (g *PlanGate) Check(ctx context.Context, state *RunState) ([]Violation, error) {
	if state.Plan != nil {
		return []Violation{}, nil
	}
	return []Violation{{
		Type:        ViolationPlanMissing,
		Phase:       PhaseAnalyze,
		Description: "plan phase produced no plan",
		Severity:    SeverityCritical,
		DetectedAt:  time.Now(),
	}}, nil
}

// StatusGate reports elements of active jobs whose status is one of
// Forbidden when Phase is about to run.
type StatusGate struct {
	name      string
	phase     Phase
	forbidden []schema.Status
	vtype     ViolationType
	severity  Severity
	describe  string
}

// NewAnalyzedGate ensures every element was classified before generation.
func NewAnalyzedGate() *StatusGate {
	return &StatusGate{
		name:      "elements-analyzed",
		phase:     PhaseGenerate,
		forbidden: []schema.Status{""},
		vtype:     ViolationUnanalyzedElement,
		severity:  SeverityCritical,
		describe:  "element was never analyzed",
	}
}

// NewGeneratedGate ensures no element is left undocumented before review.
func NewGeneratedGate() *StatusGate {
	return &StatusGate{
		name:      "elements-generated",
		phase:     PhaseReview,
		forbidden: []schema.Status{schema.StatusUndocumented},
		vtype:     ViolationUngeneratedElement,
		severity:  SeverityError,
		describe:  "element has no candidate after generation",
	}
}

// NewReviewedGate ensures every candidate was reviewed before refinement.
func NewReviewedGate() *StatusGate {
	return &StatusGate{
		name:      "elements-reviewed",
		phase:     PhaseRefine,
		forbidden: []schema.Status{schema.StatusGenerated, schema.StatusRefined},
		vtype:     ViolationUnreviewedElement,
		severity:  SeverityError,
		describe:  "candidate was never reviewed",
	}
}

// NewSettledGate ensures nothing is still in flight when output starts.
func NewSettledGate() *StatusGate {
	return &StatusGate{
		name:  "elements-settled",
		phase: PhaseOutput,
		forbidden: []schema.Status{
			schema.StatusUndocumented,
			schema.StatusGenerated,
			schema.StatusFlagged,
			schema.StatusRefined,
		},
		vtype:    ViolationUnreviewedElement,
		severity: SeverityError,
		describe: "element is still pending at output",
	}
}

// Name returns the gate identifier
func (g *StatusGate) Name() string {
	return g.name
}

// Check returns one violation per offending element.
func (g *StatusGate) Check(ctx context.Context, state *RunState) ([]Violation, error) {
	var violations []Violation
	for _, job := range state.ActiveJobs() {
		for _, e := range job.Catalog {
			if !g.matches(e.Status) {
				continue
			}
			violations = append(violations, Violation{
				Type:        g.vtype,
				Phase:       g.phase,
				Subject:     job.Subject,
				Path:        e.Key(),
				Description: fmt.Sprintf("%s: %s (%s)", g.describe, e.Key(), statusLabel(e.Status)),
				Severity:    g.severity,
				DetectedAt:  time.Now(),
			})
		}
	}
	return violations, nil
}

func (g *StatusGate) matches(s schema.Status) bool {
	for _, f := range g.forbidden {
		if s == f {
			return true
		}
	}
	return false
}

func statusLabel(s schema.Status) string {
	if s == "" {
		return "no status"
	}
	return string(s)
}

// AcceptanceGate checks the accepted elements before output: each carries
// a non-empty candidate with no open flags, and no element went past the
// refinement ceiling.
type AcceptanceGate struct {
	maxRounds int
}

// NewAcceptanceGate creates a new acceptance gate
func NewAcceptanceGate(maxRounds int) *AcceptanceGate {
	return &AcceptanceGate{maxRounds: maxRounds}
}

// Name returns the gate identifier
func (g *AcceptanceGate) Name() string {
	return "acceptance"
}

// Check validates accepted elements and refinement rounds.
func (g *AcceptanceGate) Check(ctx context.Context, state *RunState) ([]Violation, error) {
	var violations []Violation
	add := func(job *schema.Job, e *schema.Element, vt ViolationType, sev Severity, desc string) {
		violations = append(violations, Violation{
			Type:        vt,
			Phase:       PhaseOutput,
			Subject:     job.Subject,
			Path:        e.Key(),
			Description: desc,
			Severity:    sev,
			DetectedAt:  time.Now(),
		})
	}

	for _, job := range state.ActiveJobs() {
		for _, e := range job.Catalog {
			if e.Rounds > g.maxRounds {
				add(job, e, ViolationRoundCeiling, SeverityError,
					fmt.Sprintf("%s refined %d times, ceiling is %d", e.Key(), e.Rounds, g.maxRounds))
			}
			if e.Status != schema.StatusAccepted {
				continue
			}
			if e.CandidateDoc == "" {
				add(job, e, ViolationAcceptedWithoutDoc, SeverityCritical,
					fmt.Sprintf("%s accepted with an empty description", e.Key()))
			}
			if len(e.FlagReasons) > 0 {
				add(job, e, ViolationAcceptedWithFlags, SeverityCritical,
					fmt.Sprintf("%s accepted with open flags %v", e.Key(), e.FlagReasons))
			}
		}
	}
	return violations, nil
}

// DefaultGates registers the standard invariant gates on x.
func DefaultGates(x *Executor, opts *Options) {
	x.RegisterGate(PhaseAnalyze, NewPlanGate())
	x.RegisterGate(PhaseGenerate, NewAnalyzedGate())
	x.RegisterGate(PhaseReview, NewGeneratedGate())
	x.RegisterGate(PhaseRefine, NewReviewedGate())
	x.RegisterGate(PhaseOutput, NewSettledGate())
	x.RegisterGate(PhaseOutput, NewAcceptanceGate(opts.MaxRefineRounds))
}
