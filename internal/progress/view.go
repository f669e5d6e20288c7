package progress

import (
	"context"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/schemadoc/internal/llm"
	"github.com/fyrsmithlabs/schemadoc/internal/orchestrator"
)

// View runs the live model on its own goroutine and forwards run events
// into it.
type View struct {
	program *tea.Program
	done    chan struct{}
	once    sync.Once
	err     error
}

// New creates a View writing to out. cancel is invoked on ctrl+c.
func New(runID string, out io.Writer, cancel func(), opts ...tea.ProgramOption) *View {
	opts = append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)
	return &View{
		program: tea.NewProgram(NewModel(runID, cancel), opts...),
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background.
func (v *View) Start() {
	go func() {
		defer close(v.done)
		_, v.err = v.program.Run()
	}()
}

// Callback returns a progress callback that feeds the view.
func (v *View) Callback() orchestrator.ProgressCallback {
	return func(p orchestrator.PhaseProgress) {
		v.program.Send(phaseMsg(p))
	}
}

// Wrap returns a client that reports the latency and outcome of every call
// made through c.
func (v *View) Wrap(c llm.Client) llm.Client {
	return llm.Func(func(ctx context.Context, p llm.Prompt) (string, error) {
		start := time.Now()
		out, err := c.Generate(ctx, p)
		v.program.Send(callMsg{latency: time.Since(start), failed: err != nil})
		return out, err
	})
}

// Stop renders the final frame, ends the program and waits for it.
func (v *View) Stop() error {
	v.once.Do(func() {
		v.program.Send(doneMsg{})
	})
	<-v.done
	return v.err
}
