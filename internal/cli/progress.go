package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/biocurator-go/internal/service"
)

const refreshInterval = 250 * time.Millisecond

// tickMsg triggers reading the batch state
type tickMsg time.Time

// batchDoneMsg carries the pipeline result once it returns
type batchDoneMsg struct {
	report *service.BatchReport
	err    error
}

// progressModel is the bubbletea model for batch progress.
type progressModel struct {
	batch      *service.Batch
	state      service.BatchState
	cancel     context.CancelFunc
	progress   progress.Model
	theme      Theme
	done       bool
	cancelling bool
	err        error
}

// newProgressModel creates a new progress model. cancel stops the batch
// when the user presses Ctrl+C.
func newProgressModel(batch *service.Batch, cancel context.CancelFunc) progressModel {
	// Create progress bar with color blend
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		batch:    batch,
		state:    batch.Snapshot(),
		cancel:   cancel,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start refreshing).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The pipeline still cleans up remote resources; wait for it.
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
			return m, nil
		}

	case tickMsg:
		m.state = m.batch.Snapshot()
		return m, tickCmd()

	case batchDoneMsg:
		m.state = m.batch.Snapshot()
		m.err = msg.err
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// fraction returns overall completion, counting finished prompts of the
// current document.
func (m progressModel) fraction() float64 {
	s := m.state
	if s.Total == 0 {
		return 0
	}
	done := float64(s.Progress)
	if s.PromptTotal > 0 && s.Progress < s.Total {
		done += float64(s.PromptIndex) / float64(s.PromptTotal)
	}
	return min(done/float64(s.Total), 1)
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	s := m.state
	var b strings.Builder

	// Status line with color
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", s.Status))
	counts := fmt.Sprintf("%d/%d documents", s.Progress, s.Total)
	fmt.Fprintf(&b, "%s %s %s\n", status, m.progress.ViewAs(m.fraction()), counts)

	if s.Document != "" {
		line := s.Document
		if s.Prompt != "" {
			line += fmt.Sprintf(": %s (%d/%d)", s.Prompt, s.PromptIndex+1, s.PromptTotal)
		}
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "written %d, skipped %d, failed %d\n", s.Written, s.Skipped, s.Failed)

	hint := "Press Ctrl+C to cancel"
	if m.cancelling {
		hint = "Cancelling, cleaning up remote files..."
	}
	b.WriteString(m.theme.hintStyle().Render(hint) + "\n")
	return b.String()
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	s := m.state
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ Batch aborted: %s", m.err)) + "\n"
	}

	var b strings.Builder
	b.WriteString(m.theme.completedStyle().Render("✓ Completed") + "\n\n")
	fmt.Fprintf(&b, "  Documents:       %d\n", s.Progress)
	fmt.Fprintf(&b, "  Answers written: %d\n", s.Written)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "  Prompts skipped: %d\n", s.Skipped)
	}
	if len(s.Errors) > 0 {
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("\nFailed documents (%d):", len(s.Errors))) + "\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  • %s\n", e)
		}
	}
	return b.String()
}

// tickCmd returns a command that sends a tick after the refresh interval.
func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runWithProgress runs the batch in the background while an interactive
// progress display follows it. It returns once the batch has finished,
// including cleanup after a cancel.
func runWithProgress(ctx context.Context, batch *service.Batch, run func(context.Context) (*service.BatchReport, error)) (*service.BatchReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(batch, cancel))
	results := make(chan batchDoneMsg, 1)
	go func() {
		report, err := run(ctx)
		msg := batchDoneMsg{report: report, err: err}
		results <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		// Keep the batch going without a display; it still has to clean up.
		fmt.Printf("progress UI error: %v\n", err)
	}

	res := <-results
	return res.report, res.err
}
