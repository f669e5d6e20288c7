package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

func TestOptionsFromConfig_Defaults(t *testing.T) {
	cfg, err := config.Defaults()
	require.NoError(t, err)

	opts := OptionsFromConfig(cfg)
	want := DefaultOptions()
	assert.Equal(t, want.SingleBatchMax, opts.SingleBatchMax)
	assert.Equal(t, want.BatchedMax, opts.BatchedMax)
	assert.Equal(t, want.BatchSize, opts.BatchSize)
	assert.Equal(t, want.ProgressiveBatchSize, opts.ProgressiveBatchSize)
	assert.Equal(t, want.RefineBatchSize, opts.RefineBatchSize)
	assert.Equal(t, want.MaxRefineRounds, opts.MaxRefineRounds)
	assert.Equal(t, want.Concurrency, opts.Concurrency)
	assert.Equal(t, 2*time.Second, opts.PerElementCost)
	assert.Equal(t, schema.ConfidenceLow, opts.MinConfidence)
	assert.Equal(t, 6, opts.MinWords)
	assert.Equal(t, 50, opts.GenericMaxLength)
	assert.Equal(t, "openai", opts.Provider)
	assert.False(t, opts.DryRun)
	assert.NoError(t, opts.Validate())
}

func TestOptionsFromConfig_Overrides(t *testing.T) {
	cfg, err := config.Defaults()
	require.NoError(t, err)
	cfg.Registry.IncludeSubjects = []string{"orders-*"}
	cfg.Registry.ExcludeSubjects = []string{"*-test-*"}
	cfg.LLM.MinConfidence = "HIGH"
	cfg.Output.DryRun = true
	cfg.Agent.AcceptBestEffort = true

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, []string{"orders-*"}, opts.Include)
	assert.Equal(t, []string{"*-test-*"}, opts.Exclude)
	assert.Equal(t, schema.ConfidenceHigh, opts.MinConfidence)
	assert.True(t, opts.DryRun)
	assert.True(t, opts.AcceptBestEffort)

	// Options own their slices.
	cfg.Registry.IncludeSubjects[0] = "changed"
	assert.Equal(t, "orders-*", opts.Include[0])
}

func TestOptionsFromConfig_OllamaCost(t *testing.T) {
	cfg, err := config.Defaults()
	require.NoError(t, err)
	cfg.LLM.DefaultProvider = "ollama"

	assert.Equal(t, 5*time.Second, OptionsFromConfig(cfg).PerElementCost)

	cfg.Agent.PerElementCost = config.Duration(3 * time.Second)
	assert.Equal(t, 3*time.Second, OptionsFromConfig(cfg).PerElementCost)

	cfg.LLM.DefaultProvider = "openai"
	cfg.Agent.PerElementCost = 0
	assert.Equal(t, 2*time.Second, OptionsFromConfig(cfg).PerElementCost)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
		field  string
	}{
		{"bad glob", func(o *Options) { o.Exclude = []string{"orders-["} }, "registry.include_subjects"},
		{"single batch max", func(o *Options) { o.SingleBatchMax = 0 }, "agent.single_batch_max"},
		{"thresholds inverted", func(o *Options) { o.BatchedMax = 10 }, "agent.batched_max"},
		{"batch size", func(o *Options) { o.BatchSize = 0 }, "agent.batch_size"},
		{"progressive batch size", func(o *Options) { o.ProgressiveBatchSize = -1 }, "agent.progressive_batch_size"},
		{"refine batch size", func(o *Options) { o.RefineBatchSize = 0 }, "agent.refine_batch_size"},
		{"negative rounds", func(o *Options) { o.MaxRefineRounds = -1 }, "agent.max_refine_rounds"},
		{"concurrency", func(o *Options) { o.Concurrency = 0 }, "agent.concurrency"},
		{"min words", func(o *Options) { o.MinWords = 0 }, "review.min_words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			err := opts.Validate()

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestOptions_ValidateJoinsErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.BatchSize = 0
	opts.Concurrency = 0

	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.batch_size")
	assert.Contains(t, err.Error(), "agent.concurrency")
}

func TestOptions_ZeroRefineRoundsIsValid(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRefineRounds = 0
	assert.NoError(t, opts.Validate())
}
