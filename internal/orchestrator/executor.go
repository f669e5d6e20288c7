package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/telemetry"
)

// PhaseProgress reports progress during execution
type PhaseProgress struct {
	Phase      Phase       `json:"phase"`
	Status     PhaseStatus `json:"status"`
	Message    string      `json:"message"`
	Percentage int         `json:"percentage"`

	// Done and Total count batches within the phase, when it has any.
	Done  int `json:"done,omitempty"`
	Total int `json:"total,omitempty"`
}

// ProgressCallback receives progress updates during execution
type ProgressCallback func(progress PhaseProgress)

// Executor runs a RunState through the phases in order, checking gates
// between them.
type Executor struct {
	recorder         Recorder
	handlers         map[Phase]PhaseHandler
	gates            map[Phase][]PhaseGate
	progressCallback ProgressCallback
	tracer           trace.Tracer
}

// NewExecutor creates an executor. recorder may be nil.
func NewExecutor(recorder Recorder) *Executor {
	return &Executor{
		recorder: recorder,
		handlers: make(map[Phase]PhaseHandler),
		gates:    make(map[Phase][]PhaseGate),
		tracer:   otel.Tracer(telemetry.ScopeName),
	}
}

// RegisterHandler registers a phase handler
func (e *Executor) RegisterHandler(handler PhaseHandler) {
	e.handlers[handler.Phase()] = handler
}

// RegisterGate registers a gate checked before phase runs.
func (e *Executor) RegisterGate(phase Phase, gate PhaseGate) {
	e.gates[phase] = append(e.gates[phase], gate)
}

// OnProgress sets the progress callback
func (e *Executor) OnProgress(callback ProgressCallback) {
	e.progressCallback = callback
}

// SetTracer replaces the tracer used for phase spans.
func (e *Executor) SetTracer(t trace.Tracer) {
	if t != nil {
		e.tracer = t
	}
}

// Execute runs every phase of state in order. A handler error or a critical
// violation stops the run. Once ctx is cancelled no further work phase
// starts; the output phase still runs, detached from ctx, so the summary
// reflects what completed.
func (e *Executor) Execute(ctx context.Context, state *RunState) error {
	state.Status = StatusInProgress
	log := logging.FromContext(ctx)

	phases := AllPhases()
	total := len(phases)

	for i, phase := range phases {
		phaseCtx := logging.WithPhase(ctx, phase.String())

		if ctx.Err() != nil {
			state.Summary.Cancelled = true
			if phase != PhaseOutput {
				state.Results[phase] = &PhaseResult{Phase: phase, Status: StatusCancelled, StartedAt: time.Now()}
				continue
			}
			phaseCtx = context.WithoutCancel(phaseCtx)
		}

		handler, ok := e.handlers[phase]
		if !ok {
			state.Results[phase] = &PhaseResult{Phase: phase, Status: StatusSkipped, StartedAt: time.Now(), CompletedAt: time.Now()}
			state.Phase = phase
			continue
		}

		e.reportProgress(PhaseProgress{
			Phase:      phase,
			Status:     StatusInProgress,
			Message:    fmt.Sprintf("Starting phase: %s", phase),
			Percentage: (i * 100) / total,
		})

		// Gates describe a run that completed its work phases, so a
		// cancelled run skips them.
		if phase != PhasePlan && !state.Summary.Cancelled {
			violations, err := e.checkGates(phaseCtx, phase, state)
			if err != nil {
				state.Status = StatusFailed
				return fmt.Errorf("gate check error for phase %s: %w", phase, err)
			}

			for _, v := range violations {
				state.Violations = append(state.Violations, v)
				if e.recorder != nil {
					if rerr := e.recorder.RecordViolation(phaseCtx, v); rerr != nil {
						log.Warn(phaseCtx, "violation not recorded", zap.Error(rerr))
					}
				}
				if v.Severity == SeverityError {
					state.Summary.AddError(fmt.Errorf("%s: %s", v.Type, v.Description))
				}
			}

			if hasCriticalViolation(violations) {
				state.Status = StatusFailed
				return fmt.Errorf("critical violation in phase %s: %s", phase, describeViolations(violations))
			}
		}

		result, err := e.runPhase(phaseCtx, handler, state)
		if err != nil {
			if ctx.Err() != nil && phase != PhaseOutput {
				state.Summary.Cancelled = true
				state.Results[phase] = &PhaseResult{Phase: phase, Status: StatusCancelled, StartedAt: time.Now(), Error: err.Error()}
				state.Phase = phase
				continue
			}
			state.Status = StatusFailed
			state.Results[phase] = &PhaseResult{
				Phase:     phase,
				Status:    StatusFailed,
				StartedAt: time.Now(),
				Error:     err.Error(),
			}
			return err
		}

		state.Results[phase] = result
		state.Phase = phase

		e.reportProgress(PhaseProgress{
			Phase:      phase,
			Status:     result.Status,
			Message:    fmt.Sprintf("Completed phase: %s", phase),
			Percentage: ((i + 1) * 100) / total,
		})
	}

	if state.Summary.Cancelled {
		state.Status = StatusCancelled
		return nil
	}
	state.Status = StatusCompleted
	return nil
}

func (e *Executor) runPhase(ctx context.Context, handler PhaseHandler, state *RunState) (result *PhaseResult, err error) {
	phase := handler.Phase()
	ctx, span := telemetry.StartPhase(ctx, e.tracer, state.RunID, phase.String())
	defer func() {
		var attrs []attribute.KeyValue
		if result != nil {
			attrs = append(attrs, attribute.String("status", string(result.Status)))
		}
		telemetry.End(span, err, attrs...)
	}()

	started := time.Now()
	result, err = handler.Execute(ctx, state)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &PhaseResult{Phase: phase, Status: StatusCompleted}
	}
	if result.StartedAt.IsZero() {
		result.StartedAt = started
	}
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
	}
	logging.FromContext(ctx).Debug(ctx, "phase finished",
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration()),
	)
	return result, nil
}

// checkGates runs all gates for a phase and returns violations
func (e *Executor) checkGates(ctx context.Context, phase Phase, state *RunState) ([]Violation, error) {
	gates, ok := e.gates[phase]
	if !ok {
		return []Violation{}, nil
	}

	var allViolations []Violation
	for _, gate := range gates {
		violations, err := gate.Check(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("gate %s check failed: %w", gate.Name(), err)
		}
		allViolations = append(allViolations, violations...)
	}

	return allViolations, nil
}

// reportProgress sends progress updates to the callback
func (e *Executor) reportProgress(progress PhaseProgress) {
	if e.progressCallback != nil {
		e.progressCallback(progress)
	}
}

// hasCriticalViolation checks if any violation is critical
func hasCriticalViolation(violations []Violation) bool {
	for _, v := range violations {
		if v.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// describeViolations creates a summary of violations
func describeViolations(violations []Violation) string {
	if len(violations) == 0 {
		return ""
	}
	var parts []string
	for _, v := range violations {
		parts = append(parts, fmt.Sprintf("[%s] %s", v.Type, v.Description))
	}
	return strings.Join(parts, "; ")
}
