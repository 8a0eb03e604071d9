package tui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type countdownDoneMsg struct{}

// countdownModel shows a spinner with the time left until the next retry.
type countdownModel struct {
	spinner  spinner.Model
	wait     time.Duration
	deadline time.Time
	now      func() time.Time
	done     bool
}

func newCountdownModel(wait time.Duration, now func() time.Time) countdownModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return countdownModel{
		spinner:  s,
		wait:     wait,
		deadline: now().Add(wait),
		now:      now,
	}
}

func (m countdownModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tea.Tick(m.wait, func(time.Time) tea.Msg { return countdownDoneMsg{} }),
	)
}

func (m countdownModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case countdownDoneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m countdownModel) View() string {
	if m.done {
		return ""
	}
	remaining := m.deadline.Sub(m.now())
	if remaining < 0 {
		remaining = 0
	}
	return m.spinner.View() + " " +
		MessageStyle.Render("retrying in ") +
		CountdownStyle.Render(fmt.Sprintf("%.1fs", remaining.Seconds()))
}

// NewCountdownSleeper returns a pause function for retry.WithSleeper that
// animates the remaining wait on out. It honours ctx like a plain timer:
// a cancelled ctx ends the pause early and its error is returned.
func NewCountdownSleeper(out io.Writer) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}

		start := time.Now()
		p := tea.NewProgram(newCountdownModel(d, time.Now),
			tea.WithOutput(out),
			tea.WithInput(nil),
			tea.WithContext(ctx),
			tea.WithoutSignalHandler(),
		)
		if _, err := p.Run(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// Rendering failed; finish the pause without animation.
			return sleepRemaining(ctx, d-time.Since(start))
		}
		return ctx.Err()
	}
}

func sleepRemaining(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
