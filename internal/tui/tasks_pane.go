package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/tasksched/internal/events"
)

// Task statuses shown in the list.
const (
	StatusWaiting  = "waiting"
	StatusReady    = "ready"
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// TaskRow is the display state of one task.
type TaskRow struct {
	ID        string
	Name      string
	Priority  int
	Status    string
	Submitted time.Time
	Started   time.Time
	Duration  time.Duration
	Err       error
}

// TasksPaneModel lists tasks in submission order with a detail viewport for
// the selected one.
type TasksPaneModel struct {
	tasks       map[string]*TaskRow
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

const listWidth = 28

// NewTasksPaneModel creates an empty task list.
func NewTasksPaneModel() TasksPaneModel {
	return TasksPaneModel{
		tasks:    make(map[string]*TaskRow),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the task list.
func (m TasksPaneModel) Update(msg tea.Msg) (TasksPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case events.TaskSubmittedEvent:
		if _, exists := m.tasks[msg.ID]; !exists {
			m.order = append(m.order, msg.ID)
		}
		status := StatusWaiting
		if msg.Ready {
			status = StatusReady
		}
		// A reused ID starts a fresh row
		m.tasks[msg.ID] = &TaskRow{
			ID:        msg.ID,
			Name:      msg.Name,
			Priority:  msg.Priority,
			Status:    status,
			Submitted: msg.Timestamp,
		}

	case events.TaskReadyEvent:
		if row, ok := m.tasks[msg.ID]; ok {
			row.Status = StatusReady
		}

	case events.TaskStartedEvent:
		if row, ok := m.tasks[msg.ID]; ok {
			row.Status = StatusRunning
			row.Started = msg.Timestamp
		}

	case events.TaskFinishedEvent:
		if row, ok := m.tasks[msg.ID]; ok {
			row.Status = StatusFinished
			row.Duration = msg.Duration
		}

	case events.TaskFailedEvent:
		if row, ok := m.tasks[msg.ID]; ok {
			row.Status = StatusFailed
			row.Duration = msg.Duration
			row.Err = msg.Err
		}
	}

	m.viewport.SetContent(m.detail())
	return m, cmd
}

// View renders the task list and detail viewport.
func (m TasksPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	detailWidth := m.width - listWidth - 4
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(),
		lipgloss.NewStyle().
			Width(detailWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TasksPaneModel) renderList() string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusWaiting.Render("No tasks yet..."))
	}
	for i, id := range m.order {
		row := m.tasks[id]
		name := row.Name
		if len(name) > listWidth-4 {
			name = name[:listWidth-7] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(row.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(listWidth).
		Height(m.height - 2).
		Render(b.String())
}

// detail describes the selected task.
func (m TasksPaneModel) detail() string {
	row := m.Selected()
	if row == nil {
		return "Waiting for tasks..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ID:       %s\n", row.ID)
	fmt.Fprintf(&b, "Name:     %s\n", row.Name)
	fmt.Fprintf(&b, "Priority: %d\n", row.Priority)
	fmt.Fprintf(&b, "Status:   %s\n", row.Status)
	if row.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %v\n", row.Duration.Round(time.Millisecond))
	}
	if row.Err != nil {
		fmt.Fprintf(&b, "\nError:\n%v\n", row.Err)
	}
	return b.String()
}

// Selected returns the selected row, or nil when the list is empty.
func (m TasksPaneModel) Selected() *TaskRow {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.tasks[m.order[m.selectedIdx]]
	}
	return nil
}

// Counts returns the number of rows per status.
func (m TasksPaneModel) Counts() map[string]int {
	counts := make(map[string]int)
	for _, row := range m.tasks {
		counts[row.Status]++
	}
	return counts
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case StatusRunning:
		return StyleStatusRunning.Render("●")
	case StatusFinished:
		return StyleStatusFinished.Render("✓")
	case StatusFailed:
		return StyleStatusFailed.Render("✗")
	case StatusReady:
		return StyleStatusReady.Render("◐")
	default:
		return StyleStatusWaiting.Render("○")
	}
}

// SetSize updates the pane dimensions.
func (m *TasksPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-listWidth-4, 10)
	m.viewport.Height = max(h-4, 5)
}

// SetFocused updates the focus state.
func (m *TasksPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
