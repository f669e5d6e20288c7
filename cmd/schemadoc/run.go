package main

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/fyrsmithlabs/schemadoc/internal/llm"
	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
	"github.com/fyrsmithlabs/schemadoc/internal/progress"
	"github.com/fyrsmithlabs/schemadoc/internal/publish"
	"github.com/fyrsmithlabs/schemadoc/internal/report"
)

var runFlags struct {
	include         []string
	exclude         []string
	dryRun          bool
	provider        string
	model           string
	minConfidence   string
	schemasDir      string
	publisher       string
	output          string
	tui             bool
	concurrency     int
	maxRefineRounds int
}

// runCmd performs a full documentation run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Document undocumented fields and publish the result",
	Long: `Fetch the selected subjects, generate a description for every
undocumented field, review and refine the descriptions and publish the
updated definitions.

Examples:
  # Preview changes for the user subjects without publishing
  schemadoc run --dry-run -i 'user-*'

  # Open a pull request using Anthropic
  schemadoc run -p anthropic

  # Write the documented schemas to a directory
  schemadoc run --publisher directory

  # Machine readable summary
  schemadoc run --dry-run --output json`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringArrayVarP(&runFlags.include, "include", "i", nil, "subject glob to include (repeatable)")
	f.StringArrayVarP(&runFlags.exclude, "exclude", "e", nil, "subject glob to exclude (repeatable)")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "generate and review but do not publish")
	f.StringVarP(&runFlags.provider, "provider", "p", "", "language model provider")
	f.StringVarP(&runFlags.model, "model", "m", "", "model name (default: provider default)")
	f.StringVar(&runFlags.minConfidence, "min-confidence", "", "lowest accepted confidence: low, medium or high")
	f.StringVar(&runFlags.schemasDir, "schemas-dir", "", "read schemas from a local directory instead of the registry")
	f.StringVar(&runFlags.publisher, "publisher", "", "where to publish: github, git or directory")
	f.StringVarP(&runFlags.output, "output", "o", "", "summary format: text or json")
	f.BoolVar(&runFlags.tui, "tui", false, "show live progress")
	f.IntVar(&runFlags.concurrency, "concurrency", 0, "concurrent batches per phase")
	f.IntVar(&runFlags.maxRefineRounds, "max-refine-rounds", 0, "refinement rounds (0 disables refinement)")
}

// runOverrides maps the flags the user actually set onto the configuration.
func runOverrides(cmd *cobra.Command) func(*config.Config) {
	changed := cmd.Flags().Changed
	return func(c *config.Config) {
		if changed("include") {
			c.Registry.IncludeSubjects = runFlags.include
		}
		if changed("exclude") {
			c.Registry.ExcludeSubjects = runFlags.exclude
		}
		if changed("dry-run") {
			c.Output.DryRun = runFlags.dryRun
		}
		if changed("provider") {
			c.LLM.DefaultProvider = strings.ToLower(strings.TrimSpace(runFlags.provider))
		}
		if changed("model") {
			p := c.LLM.Provider(c.LLM.DefaultProvider)
			p.Model = runFlags.model
			c.LLM.Providers[c.LLM.DefaultProvider] = p
		}
		if changed("min-confidence") {
			c.LLM.MinConfidence = strings.ToLower(strings.TrimSpace(runFlags.minConfidence))
		}
		if changed("schemas-dir") {
			c.Source.SchemasDir = runFlags.schemasDir
		}
		if changed("publisher") {
			c.Output.Publisher = runFlags.publisher
		}
		if changed("output") {
			c.Output.Format = runFlags.output
		}
		if changed("tui") {
			c.Output.TUI = runFlags.tui
		}
		if changed("concurrency") {
			c.Agent.Concurrency = runFlags.concurrency
		}
		if changed("max-refine-rounds") {
			c.Agent.MaxRefineRounds = runFlags.maxRefineRounds
		}
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	return executeRun(cmd, runOverrides(cmd))
}

// executeRun loads the configuration with overrides applied and performs a
// documentation run.
func executeRun(cmd *cobra.Command, overrides ...func(*config.Config)) error {
	cfg, err := loadConfig(overrides...)
	if err != nil {
		return fail(nil, err)
	}
	ctx, rt, err := newServices(cmd.Context(), cfg)
	if err != nil {
		return fail(nil, err)
	}
	runID := uuid.NewString()
	defer rt.close(ctx, runID)

	source, err := newSource(ctx, cfg)
	if err != nil {
		return fail(nil, err)
	}
	model, err := newModel(ctx, cfg, rt)
	if err != nil {
		return fail(nil, err)
	}
	var client llm.Client = model

	var publisher orchestrator.Publisher
	if !cfg.Output.DryRun {
		if publisher, err = publish.New(ctx, cfg); err != nil {
			return fail(nil, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	options := []orchestrator.Option{
		orchestrator.WithRunID(runID),
		orchestrator.WithMetrics(rt.metrics),
		orchestrator.WithScrubber(rt.scrubber),
		orchestrator.WithTracer(rt.telemetry.Tracer(tracerName)),
		orchestrator.WithInstruments(rt.telemetry.Instruments()),
	}
	var view *progress.View
	if cfg.Output.TUI {
		view = progress.New(runID, cmd.ErrOrStderr(), cancel)
		client = view.Wrap(client)
		options = append(options, orchestrator.WithProgress(view.Callback()))
	}

	o, err := orchestrator.New(source, client, publisher, orchestrator.OptionsFromConfig(cfg), options...)
	if err != nil {
		return fail(nil, err)
	}

	if view != nil {
		view.Start()
	}
	summary, runErr := o.Run(ctx)
	if view != nil {
		if err := view.Stop(); err != nil {
			rt.logger.Warn(ctx, "progress view failed", zap.Error(err))
		}
	}

	if summary != nil {
		if err := writeSummary(cmd, cfg, summary); err != nil {
			rt.logger.Error(ctx, "cannot write summary", zap.Error(err))
		}
	}
	return fail(summary, runErr)
}

func writeSummary(cmd *cobra.Command, cfg *config.Config, summary *orchestrator.RunSummary) error {
	out := cmd.OutOrStdout()
	if cfg.Output.Format == "json" {
		return report.JSON(out, summary)
	}
	r := report.NewRenderer(out, report.WithVerbose(verbose))
	r.Summary(summary)
	if summary.DryRun {
		r.Changes(summary)
	}
	return nil
}

// fail converts a run outcome into the error returned from RunE.
func fail(summary *orchestrator.RunSummary, err error) error {
	code := orchestrator.ExitCode(summary, err)
	if code == orchestrator.ExitOK {
		return nil
	}
	return &exitError{code: code, err: err}
}
