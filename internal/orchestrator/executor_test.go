package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// MockRecorder is a mock implementation of Recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordCheckpoint(ctx context.Context, cp Checkpoint) error {
	args := m.Called(ctx, cp)
	return args.Error(0)
}

func (m *MockRecorder) RecordViolation(ctx context.Context, violation Violation) error {
	args := m.Called(ctx, violation)
	return args.Error(0)
}

// MockPhaseHandler is a mock implementation of PhaseHandler
type MockPhaseHandler struct {
	mock.Mock
	phase Phase
}

func NewMockPhaseHandler(phase Phase) *MockPhaseHandler {
	return &MockPhaseHandler{phase: phase}
}

func (m *MockPhaseHandler) Phase() Phase {
	return m.phase
}

func (m *MockPhaseHandler) Execute(ctx context.Context, state *RunState) (*PhaseResult, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PhaseResult), args.Error(1)
}

// MockGate is a mock implementation of PhaseGate
type MockGate struct {
	mock.Mock
	name string
}

func (m *MockGate) Name() string {
	return m.name
}

func (m *MockGate) Check(ctx context.Context, state *RunState) ([]Violation, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Violation), args.Error(1)
}

func newTestState() *RunState {
	opts := testOptions()
	return NewRunState("run-1", &opts)
}

func registerAll(x *Executor) map[Phase]*MockPhaseHandler {
	handlers := make(map[Phase]*MockPhaseHandler)
	for _, p := range AllPhases() {
		h := NewMockPhaseHandler(p)
		h.On("Execute", mock.Anything, mock.Anything).
			Return(&PhaseResult{Phase: p, Status: StatusCompleted}, nil).Maybe()
		x.RegisterHandler(h)
		handlers[p] = h
	}
	return handlers
}

func TestExecutor_RunsPhasesInOrder(t *testing.T) {
	x := NewExecutor(nil)
	var order []Phase
	for _, p := range AllPhases() {
		p := p
		h := NewMockPhaseHandler(p)
		h.On("Execute", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { order = append(order, p) }).
			Return(&PhaseResult{Phase: p, Status: StatusCompleted}, nil)
		x.RegisterHandler(h)
	}

	var progress []PhaseProgress
	x.OnProgress(func(p PhaseProgress) { progress = append(progress, p) })

	state := newTestState()
	require.NoError(t, x.Execute(context.Background(), state))

	assert.Equal(t, AllPhases(), order)
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, PhaseOutput, state.Phase)
	for _, p := range AllPhases() {
		require.Contains(t, state.Results, p)
		assert.False(t, state.Results[p].CompletedAt.IsZero())
	}
	require.Len(t, progress, 12)
	assert.Equal(t, 0, progress[0].Percentage)
	assert.Equal(t, 100, progress[11].Percentage)
}

func TestExecutor_MissingHandlerIsSkipped(t *testing.T) {
	x := NewExecutor(nil)
	h := NewMockPhaseHandler(PhasePlan)
	h.On("Execute", mock.Anything, mock.Anything).Return(&PhaseResult{Phase: PhasePlan, Status: StatusCompleted}, nil)
	x.RegisterHandler(h)

	gate := &MockGate{name: "never"}
	x.RegisterGate(PhaseReview, gate)

	state := newTestState()
	require.NoError(t, x.Execute(context.Background(), state))

	assert.Equal(t, StatusSkipped, state.Results[PhaseReview].Status)
	gate.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
}

func TestExecutor_HandlerErrorStops(t *testing.T) {
	x := NewExecutor(nil)
	handlers := registerAll(x)
	boom := errors.New("boom")
	handlers[PhaseGenerate].ExpectedCalls = nil
	handlers[PhaseGenerate].On("Execute", mock.Anything, mock.Anything).Return(nil, boom)

	state := newTestState()
	err := x.Execute(context.Background(), state)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, StatusFailed, state.Results[PhaseGenerate].Status)
	assert.Equal(t, "boom", state.Results[PhaseGenerate].Error)
	handlers[PhaseReview].AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestExecutor_CriticalViolationStops(t *testing.T) {
	rec := &MockRecorder{}
	rec.On("RecordViolation", mock.Anything, mock.Anything).Return(nil)

	x := NewExecutor(rec)
	handlers := registerAll(x)
	x.RegisterGate(PhaseAnalyze, NewPlanGate())

	state := newTestState()
	err := x.Execute(context.Background(), state)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan_missing")
	assert.Equal(t, StatusFailed, state.Status)
	require.Len(t, state.Violations, 1)
	rec.AssertNumberOfCalls(t, "RecordViolation", 1)
	handlers[PhaseAnalyze].AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestExecutor_ErrorViolationIsCountedAndContinues(t *testing.T) {
	x := NewExecutor(nil)
	registerAll(x)

	gate := &MockGate{name: "soft"}
	gate.On("Check", mock.Anything, mock.Anything).Return([]Violation{{
		Type:        ViolationUngeneratedElement,
		Phase:       PhaseReview,
		Description: "x has no candidate",
		Severity:    SeverityError,
	}}, nil)
	x.RegisterGate(PhaseReview, gate)

	state := newTestState()
	require.NoError(t, x.Execute(context.Background(), state))

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, 1, state.Summary.ErrorCount())
}

func TestExecutor_GateError(t *testing.T) {
	x := NewExecutor(nil)
	registerAll(x)

	gate := &MockGate{name: "broken"}
	gate.On("Check", mock.Anything, mock.Anything).Return(nil, errors.New("cannot check"))
	x.RegisterGate(PhaseGenerate, gate)

	err := x.Execute(context.Background(), newTestState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gate broken check failed")
}

func TestExecutor_CancelRunsOutputOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	x := NewExecutor(nil)
	handlers := registerAll(x)

	handlers[PhaseGenerate].ExpectedCalls = nil
	handlers[PhaseGenerate].On("Execute", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)

	var outputCtxErr error
	handlers[PhaseOutput].ExpectedCalls = nil
	handlers[PhaseOutput].On("Execute", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { outputCtxErr = args.Get(0).(context.Context).Err() }).
		Return(&PhaseResult{Phase: PhaseOutput, Status: StatusCompleted}, nil)

	gate := &MockGate{name: "settled"}
	x.RegisterGate(PhaseOutput, gate)

	state := newTestState()
	require.NoError(t, x.Execute(ctx, state))

	assert.True(t, state.Summary.Cancelled)
	assert.Equal(t, StatusCancelled, state.Status)
	assert.Equal(t, StatusCancelled, state.Results[PhaseGenerate].Status)
	assert.Equal(t, StatusCancelled, state.Results[PhaseReview].Status)
	assert.Equal(t, StatusCancelled, state.Results[PhaseRefine].Status)
	assert.Equal(t, StatusCompleted, state.Results[PhaseOutput].Status)
	assert.NoError(t, outputCtxErr)
	handlers[PhaseReview].AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	gate.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
}

func TestRunState_CanTransition(t *testing.T) {
	state := newTestState()
	assert.Error(t, state.CanTransition(PhaseAnalyze))

	state.Results[PhasePlan] = &PhaseResult{Phase: PhasePlan, Status: StatusCompleted}
	assert.NoError(t, state.CanTransition(PhaseAnalyze))
	assert.Error(t, state.CanTransition(PhaseGenerate))
	assert.Error(t, state.CanTransition(Phase("publish")))
}

func TestRunState_ActiveJobs(t *testing.T) {
	state := newTestState()
	skipped := &schema.Job{Subject: "b"}
	skipped.Skip("bad")
	state.Jobs = []*schema.Job{newJob("a", 1), skipped}

	active := state.ActiveJobs()
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].Subject)
}
