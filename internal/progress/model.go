// Package progress is the live terminal view of a run: one line per phase,
// a bar for the current phase's batches and a sparkline of model call
// latency.
package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)
)

// Message types
type phaseMsg orchestrator.PhaseProgress

type callMsg struct {
	latency time.Duration
	failed  bool
}

type doneMsg struct{}

// Model is the bubbletea model of the live view.
type Model struct {
	runID    string
	phases   []orchestrator.Phase
	states   map[orchestrator.Phase]orchestrator.PhaseProgress
	current  orchestrator.Phase
	bar      progress.Model
	history  []float64
	calls    int
	failures int
	started  time.Time
	done     bool
	quitting bool
	cancel   func()
}

// NewModel creates the view model. cancel is called when the user presses
// ctrl+c; it may be nil.
func NewModel(runID string, cancel func()) Model {
	return Model{
		runID:   runID,
		phases:  orchestrator.AllPhases(),
		states:  make(map[orchestrator.Phase]orchestrator.PhaseProgress),
		bar:     progress.New(progress.WithGradient("#00ffff", "#ff00ff"), progress.WithWidth(40)),
		history: make([]float64, 0, historySize),
		started: time.Now(),
		cancel:  cancel,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			m.quitting = true
			return m, tea.Quit
		case "q":
			m.quitting = true
			return m, tea.Quit
		}

	case phaseMsg:
		p := orchestrator.PhaseProgress(msg)
		m.states[p.Phase] = p
		m.current = p.Phase
		return m, nil

	case callMsg:
		m.calls++
		if msg.failed {
			m.failures++
		}
		m.history = appendToHistory(m.history, float64(msg.latency.Milliseconds()))
		return m, nil

	case doneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(" schemadoc ") + " " + dimStyle.Render(m.runID) + "\n\n")

	for _, phase := range m.phases {
		p, seen := m.states[phase]
		fmt.Fprintf(&b, "  %s %s", phaseBadge(p.Status, seen), labelStyle.Render(fmt.Sprintf("%-9s", phase)))
		if seen && p.Message != "" {
			b.WriteString(" " + dimStyle.Render(p.Message))
		}
		b.WriteString("\n")
	}

	if p, ok := m.states[m.current]; ok && p.Total > 0 {
		ratio := float64(p.Done) / float64(p.Total)
		fmt.Fprintf(&b, "\n  %s %s %s\n",
			labelStyle.Render(fmt.Sprintf("%-9s", m.current)),
			m.bar.ViewAs(ratio),
			dimStyle.Render(fmt.Sprintf("%d/%d batches", p.Done, p.Total)))
	}

	fmt.Fprintf(&b, "\n  %s %s  %s %s\n",
		labelStyle.Render("Model calls:"), valueStyle.Render(fmt.Sprint(m.calls)),
		labelStyle.Render("Failed:"), valueStyle.Render(fmt.Sprint(m.failures)))
	b.WriteString("  " + labelStyle.Render("Latency (ms):") + "\n")
	b.WriteString(indent(createSparkline(m.history), "  ") + "\n")

	if !m.done {
		b.WriteString(footerStyle.Render(fmt.Sprintf("  elapsed %s   [ctrl+c] cancel run  [q] hide", time.Since(m.started).Round(time.Second))))
		b.WriteString("\n")
	}
	return b.String()
}

func phaseBadge(status orchestrator.PhaseStatus, seen bool) string {
	if !seen {
		return dimStyle.Render("·")
	}
	switch status {
	case orchestrator.StatusCompleted:
		return okStyle.Render("✓")
	case orchestrator.StatusInProgress:
		return runningStyle.Render("▸")
	case orchestrator.StatusFailed:
		return failedStyle.Render("✗")
	case orchestrator.StatusCancelled:
		return failedStyle.Render("⊘")
	case orchestrator.StatusSkipped:
		return dimStyle.Render("–")
	}
	return dimStyle.Render("·")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()
	return sparklineStyle.Render(spark.View())
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
