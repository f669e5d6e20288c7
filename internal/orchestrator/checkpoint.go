package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemadoc/internal/logging"
)

// Checkpoint records a completed batch so a run that stops early still
// reports how far it got.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	Phase     Phase     `json:"phase"`
	Subject   string    `json:"subject"`
	Batch     int       `json:"batch"`
	Round     int       `json:"round,omitempty"`
	Elements  int       `json:"elements"`
	Failed    bool      `json:"failed"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	At        time.Time `json:"at"`
}

// Recorder receives checkpoints and gate violations.
type Recorder interface {
	// RecordCheckpoint saves a batch completion
	RecordCheckpoint(ctx context.Context, cp Checkpoint) error

	// RecordViolation records a gate violation
	RecordViolation(ctx context.Context, violation Violation) error
}

// LogRecorder writes checkpoints and violations to the context logger.
type LogRecorder struct{}

// NewLogRecorder creates a recorder backed by structured logging.
func NewLogRecorder() *LogRecorder {
	return &LogRecorder{}
}

// RecordCheckpoint logs cp at info level.
func (r *LogRecorder) RecordCheckpoint(ctx context.Context, cp Checkpoint) error {
	logging.FromContext(ctx).Info(ctx, "checkpoint",
		zap.String("phase", string(cp.Phase)),
		zap.String("subject", cp.Subject),
		zap.Int("batch", cp.Batch),
		zap.Int("round", cp.Round),
		zap.Int("elements", cp.Elements),
		zap.Bool("failed", cp.Failed),
		zap.String("progress", fmt.Sprintf("%d/%d", cp.Completed, cp.Total)),
	)
	return nil
}

// RecordViolation logs v at a level matching its severity.
func (r *LogRecorder) RecordViolation(ctx context.Context, v Violation) error {
	log := logging.FromContext(ctx)
	fields := []zap.Field{
		zap.String("type", string(v.Type)),
		zap.String("phase", string(v.Phase)),
		zap.String("severity", string(v.Severity)),
		zap.String("subject", v.Subject),
		zap.String("path", v.Path),
	}
	if v.Severity == SeverityWarning {
		log.Warn(ctx, v.Description, fields...)
		return nil
	}
	log.Error(ctx, v.Description, fields...)
	return nil
}

// MemoryRecorder keeps checkpoints and violations in memory. It is safe for
// concurrent use.
type MemoryRecorder struct {
	mu          sync.Mutex
	checkpoints []Checkpoint
	violations  []Violation
}

// RecordCheckpoint appends cp.
func (r *MemoryRecorder) RecordCheckpoint(_ context.Context, cp Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints = append(r.checkpoints, cp)
	return nil
}

// RecordViolation appends v.
func (r *MemoryRecorder) RecordViolation(_ context.Context, v Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, v)
	return nil
}

// Checkpoints returns a copy of the recorded checkpoints.
func (r *MemoryRecorder) Checkpoints() []Checkpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Checkpoint(nil), r.checkpoints...)
}

// Violations returns a copy of the recorded violations.
func (r *MemoryRecorder) Violations() []Violation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Violation(nil), r.violations...)
}
