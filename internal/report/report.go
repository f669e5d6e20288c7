// Package report renders plans, analysis results and run summaries for the
// terminal, and the summary as JSON for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/tidwall/pretty"

	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

const (
	coverageBarWidth = 20

	// maxChangesShown caps the per-schema change listing of a dry run
	// unless verbose output is requested.
	maxChangesShown = 5
)

// Renderer writes styled text reports to one writer.
type Renderer struct {
	w       io.Writer
	verbose bool

	header  lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	added   lipgloss.Style
	removed lipgloss.Style

	bar progress.Model
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithVerbose lists every change and the full unified diff in dry runs.
func WithVerbose(v bool) Option {
	return func(r *Renderer) { r.verbose = v }
}

// NewRenderer creates a Renderer whose color profile follows w.
func NewRenderer(w io.Writer, opts ...Option) *Renderer {
	lg := lipgloss.NewRenderer(w)
	r := &Renderer{
		w:       w,
		header:  lg.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("51")).Bold(true).Padding(0, 1),
		section: lg.NewStyle().Foreground(lipgloss.Color("51")).Bold(true),
		label:   lg.NewStyle().Foreground(lipgloss.Color("45")),
		value:   lg.NewStyle().Foreground(lipgloss.Color("231")).Bold(true),
		dim:     lg.NewStyle().Foreground(lipgloss.Color("245")),
		ok:      lg.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
		warn:    lg.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
		bad:     lg.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		added:   lg.NewStyle().Foreground(lipgloss.Color("46")),
		removed: lg.NewStyle().Foreground(lipgloss.Color("196")),
		bar: progress.New(
			progress.WithGradient("#ff5f5f", "#00ff87"),
			progress.WithWidth(coverageBarWidth),
			progress.WithoutPercentage(),
		),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan renders the planning decision.
func (r *Renderer) Plan(plan *orchestrator.PlanReport) {
	if plan == nil {
		return
	}
	fmt.Fprintln(r.w, r.header.Render("schemadoc plan"))
	fmt.Fprintf(r.w, "%s %s   %s %s   %s %s   %s %s\n",
		r.label.Render("Strategy:"), r.value.Render(string(plan.Strategy)),
		r.label.Render("Schemas:"), r.value.Render(fmt.Sprint(plan.TotalSchemas)),
		r.label.Render("Elements:"), r.value.Render(fmt.Sprint(plan.TotalElements)),
		r.label.Render("Estimate:"), r.value.Render(FormatDuration(plan.EstimatedDuration)),
	)
	if plan.Strategy != orchestrator.StrategySkip {
		fmt.Fprintf(r.w, "%s %s\n", r.label.Render("Batch size:"), r.value.Render(fmt.Sprint(plan.BatchSize)))
	}
	if len(plan.PriorityOrder) > 0 {
		fmt.Fprintf(r.w, "%s %s\n", r.label.Render("Order:"), r.dim.Render(strings.Join(plan.PriorityOrder, ", ")))
	}
}

// Analysis renders per-schema coverage and the undocumented elements found
// by an analyze-only run.
func (r *Renderer) Analysis(state *orchestrator.RunState) {
	r.Plan(state.Plan)
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, r.section.Render("┃ Coverage"))

	t := r.newTable("Subject", "Format", "Elements", "Undocumented", "Coverage")
	for _, job := range state.ActiveJobs() {
		t.Row(job.Subject, string(job.Format),
			fmt.Sprint(len(job.Catalog)),
			fmt.Sprint(job.Undocumented()),
			r.coverage(job.CoverageBefore))
	}
	fmt.Fprintln(r.w, t.Render())

	if r.verbose {
		for _, job := range state.ActiveJobs() {
			missing := job.Catalog.WithStatus(schema.StatusUndocumented)
			if len(missing) == 0 {
				continue
			}
			fmt.Fprintf(r.w, "\n%s\n", r.value.Render(job.Subject))
			for _, e := range missing {
				fmt.Fprintf(r.w, "  %s %s %s\n", r.warn.Render("?"), e.Key(), r.dim.Render(string(e.Kind)))
			}
		}
	}
	r.skipped(state.Summary)
}

// Summary renders the outcome of a run.
func (r *Renderer) Summary(s *orchestrator.RunSummary) {
	title := "schemadoc summary"
	if s.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(r.w, r.header.Render(title))
	fmt.Fprintf(r.w, "%s %s   %s %s   %s %s\n",
		r.label.Render("Run:"), r.dim.Render(s.RunID),
		r.label.Render("Strategy:"), r.value.Render(string(s.Strategy)),
		r.label.Render("Took:"), r.value.Render(FormatDuration(s.Duration)),
	)

	t := r.newTable("Metric", "Value").
		Row("Schemas processed", fmt.Sprint(s.SchemasProcessed)).
		Row("Schemas up to date", fmt.Sprint(s.SchemasUpToDate)).
		Row("Elements documented", fmt.Sprint(s.ElementsDocumented)).
		Row("Elements refined", fmt.Sprint(s.ElementsRefined)).
		Row("Accepted after refinement", fmt.Sprint(s.AcceptedAfterRefine)).
		Row("Elements failed", fmt.Sprint(s.ElementsFailed)).
		Row("Elements pending", fmt.Sprint(s.ElementsPending)).
		Row("Refinement rounds", fmt.Sprint(s.RefineRounds)).
		Row("Errors", fmt.Sprint(len(s.Errors)))
	fmt.Fprintln(r.w, t.Render())

	if len(s.Jobs) > 0 {
		fmt.Fprintln(r.w, r.section.Render("┃ Schemas"))
		jt := r.newTable("Subject", "Documented", "Failed", "Before", "After")
		for _, j := range s.Jobs {
			jt.Row(j.Subject,
				fmt.Sprintf("%d/%d", j.Accepted, j.Elements-j.AlreadyDocumented),
				fmt.Sprint(j.Failed),
				FormatPercentage(j.CoverageBefore),
				r.coverage(j.CoverageAfter))
		}
		fmt.Fprintln(r.w, jt.Render())
	}

	r.skipped(s)
	if len(s.Errors) > 0 {
		fmt.Fprintln(r.w, r.section.Render("┃ Errors"))
		for _, e := range s.Errors {
			fmt.Fprintf(r.w, "  %s %s\n", r.bad.Render("✗"), e)
		}
	}

	switch {
	case s.Cancelled:
		fmt.Fprintln(r.w, r.warn.Render("⚠ run cancelled; nothing was published"))
	case s.Published && s.ChangeSet != nil:
		fmt.Fprintf(r.w, "%s %s\n", r.ok.Render("✓ published"), s.ChangeSet.Reference)
	case s.DryRun:
		fmt.Fprintln(r.w, r.dim.Render("dry run: nothing was published"))
	}
}

// Changes renders the field-level diff of every changed schema. In verbose
// mode the unified diff of each definition follows.
func (r *Renderer) Changes(s *orchestrator.RunSummary) {
	for _, j := range s.Jobs {
		if len(j.Changes) == 0 {
			continue
		}
		fmt.Fprintf(r.w, "\n%s %s\n", r.value.Render(j.Subject), r.dim.Render(fmt.Sprintf("(%d fields)", len(j.Changes))))
		shown := j.Changes
		if !r.verbose && len(shown) > maxChangesShown {
			shown = shown[:maxChangesShown]
		}
		for _, c := range shown {
			fmt.Fprintf(r.w, "  %s %s %s\n", r.ok.Render("✓"), c.Path, r.dim.Render("["+c.Confidence.String()+"]"))
			if c.Before != "" {
				fmt.Fprintf(r.w, "    %s\n", r.removed.Render("- "+c.Before))
			}
			fmt.Fprintf(r.w, "    %s\n", r.added.Render("+ "+c.After))
		}
		if hidden := len(j.Changes) - len(shown); hidden > 0 {
			fmt.Fprintf(r.w, "  %s\n", r.dim.Render(fmt.Sprintf("... and %d more", hidden)))
		}
		if r.verbose && j.Diff != "" {
			fmt.Fprintln(r.w)
			r.unified(j.Diff)
		}
	}
}

func (r *Renderer) unified(diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		text := strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprintln(r.w, r.value.Render(text))
		case strings.HasPrefix(line, "+"):
			fmt.Fprintln(r.w, r.added.Render(text))
		case strings.HasPrefix(line, "-"):
			fmt.Fprintln(r.w, r.removed.Render(text))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprintln(r.w, r.section.Render(text))
		default:
			fmt.Fprintln(r.w, text)
		}
	}
}

func (r *Renderer) skipped(s *orchestrator.RunSummary) {
	if s == nil || len(s.Skipped) == 0 {
		return
	}
	fmt.Fprintln(r.w, r.section.Render("┃ Skipped"))
	for _, sk := range s.Skipped {
		fmt.Fprintf(r.w, "  %s %s: %s\n", r.warn.Render("⚠"), sk.Subject, r.dim.Render(sk.Reason))
	}
}

func (r *Renderer) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.dim).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.section.Padding(0, 1)
			}
			return r.value.UnsetBold().Padding(0, 1)
		})
}

// coverage draws a static bar followed by the percentage.
func (r *Renderer) coverage(ratio float64) string {
	return r.bar.ViewAs(ratio) + " " + FormatPercentage(ratio)
}

// JSON writes the summary as indented JSON.
func JSON(w io.Writer, s *orchestrator.RunSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = w.Write(pretty.Pretty(data))
	return err
}

// FormatPercentage formats a ratio (0-1) as a percentage.
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// FormatDuration formats d as "1h2m", "3m4s" or "5.2s".
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
