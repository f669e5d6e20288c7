package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/schemadoc/internal/logging"
)

func TestMemoryRecorder(t *testing.T) {
	rec := &MemoryRecorder{}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = rec.RecordCheckpoint(ctx, Checkpoint{RunID: "run-1", Batch: i, Completed: i, Total: 10, At: time.Now()})
		}(i)
	}
	wg.Wait()
	require.NoError(t, rec.RecordViolation(ctx, Violation{Type: ViolationRoundCeiling, Severity: SeverityError}))

	assert.Len(t, rec.Checkpoints(), 10)
	require.Len(t, rec.Violations(), 1)

	// Returned slices are copies.
	cps := rec.Checkpoints()
	cps[0].RunID = "changed"
	assert.Equal(t, "run-1", rec.Checkpoints()[0].RunID)
}

func TestLogRecorder(t *testing.T) {
	logger := logging.NewTestLogger()
	ctx := logging.WithLogger(context.Background(), logger.Logger)

	rec := NewLogRecorder()
	require.NoError(t, rec.RecordCheckpoint(ctx, Checkpoint{Phase: PhaseGenerate, Subject: "orders-value", Batch: 2, Completed: 2, Total: 5}))
	require.NoError(t, rec.RecordViolation(ctx, Violation{Type: ViolationUngeneratedElement, Description: "no candidate", Severity: SeverityError}))
	require.NoError(t, rec.RecordViolation(ctx, Violation{Type: ViolationRoundCeiling, Description: "too many rounds", Severity: SeverityWarning}))

	logger.AssertField(t, "checkpoint", "progress", "2/5")
	logger.AssertField(t, "checkpoint", "subject", "orders-value")
	logger.AssertLogged(t, zapcore.ErrorLevel, "no candidate")
	logger.AssertLogged(t, zapcore.WarnLevel, "too many rounds")
}
