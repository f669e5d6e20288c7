package logging

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampledLogger(levels map[zapcore.Level]LevelSamplingConfig) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(TraceLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels:  levels,
	})
	return &Logger{zap: zap.New(sampled), config: NewDefaultConfig()}, observed
}

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Same(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}

func TestSampling_PerLevelRates(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSamplingConfig{
		zapcore.DebugLevel: {Initial: 2, Thereafter: 0},
		zapcore.InfoLevel:  {Initial: 5, Thereafter: 0},
	})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		logger.Debug(ctx, "debug repeated")
		logger.Info(ctx, "info repeated")
		logger.Warn(ctx, "warn repeated")
	}

	assert.Equal(t, 2, observed.FilterMessage("debug repeated").Len())
	assert.Equal(t, 5, observed.FilterMessage("info repeated").Len())
	assert.Equal(t, 20, observed.FilterMessage("warn repeated").Len(), "unlisted levels pass through")
}

func TestSampling_ErrorsNeverDropped(t *testing.T) {
	logger, observed := sampledLogger(map[zapcore.Level]LevelSamplingConfig{
		zapcore.ErrorLevel: {Initial: 1, Thereafter: 0},
	})

	for i := 0; i < 50; i++ {
		logger.Error(context.Background(), "error message")
	}
	assert.Equal(t, 50, observed.FilterMessage("error message").Len())
}

func TestLevelFilterCore_With(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	filtered := &levelFilterCore{Core: core, allow: func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel }}

	child := zap.New(filtered).With(zap.String("component", "reviewer"))
	child.Warn("dropped")
	child.Error("kept")

	logs := observed.All()
	assert.Len(t, logs, 1)
	assert.Equal(t, "reviewer", logs[0].ContextMap()["component"])
}
