package tui

import (
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/tasksched/internal/config"
)

// SettingsPaneModel edits the configuration used by the next run and saves
// it to the global or project config file.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Bound by pointer into the form, so it must survive model copies
	fields *settingsFields
}

// settingsFields holds the form field bindings (strings for Huh).
type settingsFields struct {
	saveTarget  string
	workers     string
	recheck     string
	logLevel    string
	logFormat   string
	metricsAddr string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	m.fields = &settingsFields{
		saveTarget:  "project",
		workers:     strconv.Itoa(m.config.Workers),
		recheck:     m.config.RecheckInterval.Std().String(),
		logLevel:    m.config.Log.Level,
		logFormat:   m.config.Log.Format,
		metricsAddr: m.config.MetricsAddr,
	}
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	f := m.fields
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Project (.tasksched/config.json)", "project"),
					huh.NewOption("Global (~/.tasksched/config.json)", "global"),
				).
				Value(&f.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("workers").
				Title("Workers (0 = one per CPU)").
				Value(&f.workers).
				Validate(validateWorkers),

			huh.NewInput().
				Key("recheck").
				Title("Re-check Interval").
				Value(&f.recheck).
				Placeholder("1s").
				Validate(validateInterval),

			huh.NewInput().
				Key("metricsAddr").
				Title("Metrics Address").
				Value(&f.metricsAddr).
				Placeholder(":9090"),
		).Title("Scheduler"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("logLevel").
				Title("Log Level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&f.logLevel),

			huh.NewSelect[string]().
				Key("logFormat").
				Title("Log Format").
				Options(huh.NewOptions("text", "json")...).
				Value(&f.logFormat),
		).Title("Logging"),
	)
}

func validateWorkers(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("enter a non-negative whole number")
	}
	return nil
}

func validateInterval(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fmt.Errorf("enter a positive duration such as 500ms")
	}
	return nil
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.save()
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// save copies the form back into the config and writes the chosen file.
func (m *SettingsPaneModel) save() error {
	if err := m.applyFormToConfig(); err != nil {
		return err
	}

	targetPath := m.projectPath
	if m.fields.saveTarget == "global" {
		targetPath = m.globalPath
	}
	return config.Save(m.config, targetPath)
}

// applyFormToConfig copies form field values back to the config struct.
func (m *SettingsPaneModel) applyFormToConfig() error {
	f := m.fields
	workers, err := strconv.Atoi(f.workers)
	if err != nil {
		return fmt.Errorf("workers: %w", err)
	}
	recheck, err := time.ParseDuration(f.recheck)
	if err != nil {
		return fmt.Errorf("recheck interval: %w", err)
	}

	m.config.Workers = workers
	m.config.RecheckInterval = config.Duration(recheck)
	m.config.Log.Level = f.logLevel
	m.config.Log.Format = f.logFormat
	m.config.MetricsAddr = f.metricsAddr
	return nil
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = StyleStatusFailed.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings (applied on next run)")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it resets the form.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	if v {
		m.loadFields()
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last form submission was written to disk.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
