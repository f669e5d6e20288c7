package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"github.com/gobwas/glob"
)

const (
	defaultPerElementCost = 2 * time.Second
	ollamaPerElementCost  = 5 * time.Second
)

// Options is the immutable run configuration handed to every component.
// Build it once with OptionsFromConfig or DefaultOptions.
type Options struct {
	Include []string
	Exclude []string

	// Strategy thresholds on the total element count.
	SingleBatchMax int
	BatchedMax     int

	BatchSize            int
	ProgressiveBatchSize int
	RefineBatchSize      int
	MaxRefineRounds      int
	Concurrency          int
	PerElementCost       time.Duration

	// AcceptBestEffort merges failed elements' last candidate into output.
	AcceptBestEffort bool

	MinConfidence    schema.Confidence
	MinWords         int
	GenericMaxLength int

	DryRun   bool
	Provider string
	Model    string
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		SingleBatchMax:       19,
		BatchedMax:           99,
		BatchSize:            10,
		ProgressiveBatchSize: 5,
		RefineBatchSize:      5,
		MaxRefineRounds:      1,
		Concurrency:          4,
		PerElementCost:       defaultPerElementCost,
		MinConfidence:        schema.ConfidenceLow,
		MinWords:             6,
		GenericMaxLength:     50,
		Provider:             "openai",
	}
}

// OptionsFromConfig derives Options from a loaded configuration. The local
// ollama provider is slower, so the default per-element cost rises to 5s.
func OptionsFromConfig(cfg *config.Config) Options {
	a := cfg.Agent
	o := Options{
		Include:              append([]string(nil), cfg.Registry.IncludeSubjects...),
		Exclude:              append([]string(nil), cfg.Registry.ExcludeSubjects...),
		SingleBatchMax:       a.SingleBatchMax,
		BatchedMax:           a.BatchedMax,
		BatchSize:            a.BatchSize,
		ProgressiveBatchSize: a.ProgressiveBatchSize,
		RefineBatchSize:      a.RefineBatchSize,
		MaxRefineRounds:      a.MaxRefineRounds,
		Concurrency:          a.Concurrency,
		PerElementCost:       a.PerElementCost.Duration(),
		AcceptBestEffort:     a.AcceptBestEffort,
		MinConfidence:        schema.ParseConfidence(cfg.LLM.MinConfidence),
		MinWords:             cfg.Review.MinWords,
		GenericMaxLength:     cfg.Review.GenericMaxLength,
		DryRun:               cfg.Output.DryRun,
		Provider:             cfg.LLM.DefaultProvider,
		Model:                cfg.LLM.Provider(cfg.LLM.DefaultProvider).Model,
	}
	if o.PerElementCost == 0 || (o.Provider == "ollama" && o.PerElementCost == defaultPerElementCost) {
		o.PerElementCost = perElementCost(o.Provider)
	}
	return o
}

func perElementCost(provider string) time.Duration {
	if strings.EqualFold(provider, "ollama") {
		return ollamaPerElementCost
	}
	return defaultPerElementCost
}

// Validate returns every problem found, joined. Each one is a
// *ConfigurationError.
func (o *Options) Validate() error {
	var errs []error
	bad := func(field, reason string) {
		errs = append(errs, &ConfigurationError{Field: field, Reason: reason})
	}

	for _, p := range append(append([]string{}, o.Include...), o.Exclude...) {
		if _, err := glob.Compile(p); err != nil {
			errs = append(errs, &ConfigurationError{Field: "registry.include_subjects", Reason: fmt.Sprintf("invalid glob %q", p), Err: err})
		}
	}
	if o.SingleBatchMax <= 0 {
		bad("agent.single_batch_max", "must be positive")
	}
	if o.BatchedMax <= o.SingleBatchMax {
		bad("agent.batched_max", "must be greater than agent.single_batch_max")
	}
	if o.BatchSize <= 0 {
		bad("agent.batch_size", "must be positive")
	}
	if o.ProgressiveBatchSize <= 0 {
		bad("agent.progressive_batch_size", "must be positive")
	}
	if o.RefineBatchSize <= 0 {
		bad("agent.refine_batch_size", "must be positive")
	}
	if o.MaxRefineRounds < 0 {
		bad("agent.max_refine_rounds", "cannot be negative")
	}
	if o.Concurrency <= 0 {
		bad("agent.concurrency", "must be positive")
	}
	if o.MinWords <= 0 {
		bad("review.min_words", "must be positive")
	}
	return errors.Join(errs...)
}
