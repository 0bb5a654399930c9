// Package tui renders live scheduler progress with Bubble Tea.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/tasksched/internal/config"
	"github.com/aristath/tasksched/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	paneCount
)

// RunFinishedMsg tells the model the workers have returned.
type RunFinishedMsg struct {
	Err error
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	tasksPane    TasksPaneModel
	progressPane ProgressPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates a new TUI model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(eventBus *events.EventBus, cfg *config.Config, globalPath, projectPath string) Model {
	return Model{
		tasksPane:    NewTasksPaneModel(),
		progressPane: NewProgressPaneModel(),
		settingsPane: NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:  PaneTasks,
		eventSub:     eventBus.SubscribeAll(1024),
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.eventSub), m.progressPane.Init())
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Settings is modal while open
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			m.settingsPane.SetSize(m.width, m.height)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.tasksPane, cmd = m.tasksPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case events.TaskSubmittedEvent, events.TaskReadyEvent, events.TaskStartedEvent,
		events.TaskFinishedEvent, events.TaskFailedEvent:
		var cmd tea.Cmd
		m.tasksPane, cmd = m.tasksPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.ProgressEvent:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case RunFinishedMsg:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd)

	default:
		// Spinner ticks and other component messages
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.tasksPane.View(), m.progressPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, mainContent, HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 60) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // help bar

	m.tasksPane.SetSize(leftWidth, availableHeight)
	m.progressPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.tasksPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
