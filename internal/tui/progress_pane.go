package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/tasksched/internal/events"
)

// ProgressPaneModel shows aggregate run progress.
type ProgressPaneModel struct {
	last    events.ProgressEvent
	bar     progress.Model
	spinner spinner.Model
	done    bool
	runErr  error
	width   int
	height  int
	focused bool
}

// NewProgressPaneModel creates a progress pane.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(StyleStatusRunning)),
	}
}

// Init starts the spinner.
func (m ProgressPaneModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case events.ProgressEvent:
		m.last = msg

	case RunFinishedMsg:
		m.done = true
		m.runErr = msg.Err

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Fraction returns the completed share of submitted tasks.
func (m ProgressPaneModel) Fraction() float64 {
	if m.last.Total == 0 {
		return 0
	}
	return float64(m.last.Finished+m.last.Failed) / float64(m.last.Total)
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	heading := "Progress"
	if !m.done {
		heading = m.spinner.View() + " " + heading
	}
	title := StyleTitle.Render(heading)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Total:    %d\n", m.last.Total))
	b.WriteString(fmt.Sprintf("Finished: %s\n", StyleStatusFinished.Render(fmt.Sprintf("%d", m.last.Finished))))
	b.WriteString(fmt.Sprintf("Running:  %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.last.Running))))
	b.WriteString(fmt.Sprintf("Failed:   %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.last.Failed))))
	b.WriteString(fmt.Sprintf("Pending:  %s\n", StyleStatusWaiting.Render(fmt.Sprintf("%d", m.last.Pending))))
	b.WriteString("\n")

	if m.last.Total > 0 {
		b.WriteString(fmt.Sprintf("%s  %d/%d\n", m.bar.ViewAs(m.Fraction()), m.last.Finished+m.last.Failed, m.last.Total))
	}

	if m.done {
		b.WriteString("\n")
		if m.runErr != nil {
			b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("Run stopped: %v", m.runErr)))
		} else {
			b.WriteString(StyleDone.Render("Run complete. Press q to exit."))
		}
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.bar.Width = min(max(w-12, 10), 40)
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
