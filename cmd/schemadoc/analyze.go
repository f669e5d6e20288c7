package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
	"github.com/fyrsmithlabs/schemadoc/internal/report"
)

// analyzeCmd plans a run and reports coverage without calling a model
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Report documentation coverage without generating anything",
	Long: `Fetch the selected subjects, count their undocumented elements and
show the strategy a run would use. No language model is called and nothing
is published.

Examples:
  # Coverage of every subject
  schemadoc analyze

  # List each undocumented field of the order subjects
  schemadoc analyze -v -i 'order-*'`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringArrayVarP(&runFlags.include, "include", "i", nil, "subject glob to include (repeatable)")
	f.StringArrayVarP(&runFlags.exclude, "exclude", "e", nil, "subject glob to exclude (repeatable)")
	f.StringVar(&runFlags.schemasDir, "schemas-dir", "", "read schemas from a local directory instead of the registry")
	f.StringVarP(&runFlags.output, "output", "o", "", "report format: text or json")
}

// analysis is the JSON form of an analyze run.
type analysis struct {
	Plan    *orchestrator.PlanReport  `json:"plan"`
	Schemas []analyzedSchema          `json:"schemas"`
	Skipped []orchestrator.SkippedJob `json:"skipped,omitempty"`
}

type analyzedSchema struct {
	Subject      string  `json:"subject"`
	Format       string  `json:"format"`
	Elements     int     `json:"elements"`
	Undocumented int     `json:"undocumented"`
	Coverage     float64 `json:"coverage"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runOverrides(cmd), func(c *config.Config) {
		// Analysis never publishes, so publisher credentials are not needed.
		c.Output.DryRun = true
	})
	if err != nil {
		return fail(nil, err)
	}
	ctx, rt, err := newServices(cmd.Context(), cfg)
	if err != nil {
		return fail(nil, err)
	}
	defer rt.close(ctx, "")

	source, err := newSource(ctx, cfg)
	if err != nil {
		return fail(nil, err)
	}
	o, err := orchestrator.New(source, nil, nil, orchestrator.OptionsFromConfig(cfg),
		orchestrator.WithTracer(rt.telemetry.Tracer(tracerName)),
		orchestrator.WithInstruments(rt.telemetry.Instruments()))
	if err != nil {
		return fail(nil, err)
	}

	state, runErr := o.Analyze(ctx)
	if state == nil {
		return fail(nil, runErr)
	}
	if cfg.Output.Format == "json" {
		if err := writeAnalysisJSON(cmd, state); err != nil {
			return fail(nil, err)
		}
	} else {
		report.NewRenderer(cmd.OutOrStdout(), report.WithVerbose(verbose)).Analysis(state)
	}
	return fail(state.Summary, runErr)
}

func writeAnalysisJSON(cmd *cobra.Command, state *orchestrator.RunState) error {
	a := analysis{Plan: state.Plan, Schemas: []analyzedSchema{}}
	if state.Summary != nil {
		a.Skipped = state.Summary.Skipped
	}
	for _, job := range state.ActiveJobs() {
		a.Schemas = append(a.Schemas, analyzedSchema{
			Subject:      job.Subject,
			Format:       string(job.Format),
			Elements:     len(job.Catalog),
			Undocumented: job.Undocumented(),
			Coverage:     job.CoverageBefore,
		})
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(pretty.Pretty(data))
	return err
}
