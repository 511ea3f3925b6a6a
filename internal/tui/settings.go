package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/dispatch/internal/config"
	"github.com/aristath/dispatch/internal/scheduler"
)

// SaveTarget is a config file the settings form can write.
type SaveTarget struct {
	Label string
	Path  string
}

// SettingsModel is a form that edits the policy, agent roster and backends
// of a config and saves it to one of the targets.
type SettingsModel struct {
	form        *huh.Form
	config      *config.DispatchConfig
	targets     []SaveTarget
	checkTarget func(path string) error
	width       int
	height      int
	savedPath   string
	aborted     bool
	err         error

	// Form field bindings
	target   string
	policy   string
	agents   string
	backends string
}

// NewSettingsModel creates a settings form seeded from cfg. The first target
// is preselected. checkTarget, when set, vetoes a target before saving.
func NewSettingsModel(cfg *config.DispatchConfig, targets []SaveTarget, checkTarget func(path string) error) SettingsModel {
	m := SettingsModel{
		config:      cfg,
		targets:     targets,
		checkTarget: checkTarget,
		policy:      cfg.Policy,
		agents:      formatAgents(cfg),
		backends:    formatBackends(cfg.Backends),
	}
	if len(targets) > 0 {
		m.target = targets[0].Path
	}
	m.buildForm()
	return m
}

func (m *SettingsModel) buildForm() {
	policies := make([]huh.Option[string], 0, len(scheduler.Policies()))
	for _, p := range scheduler.Policies() {
		policies = append(policies, huh.NewOption(p, p))
	}

	var groups []*huh.Group
	if len(m.targets) > 1 {
		opts := make([]huh.Option[string], 0, len(m.targets))
		for _, t := range m.targets {
			opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", t.Label, t.Path), t.Path))
		}
		groups = append(groups, huh.NewGroup(
			huh.NewSelect[string]().
				Key("target").
				Title("Save To").
				Options(opts...).
				Validate(m.validateTarget).
				Value(&m.target),
		).Title("Save Target"))
	}

	groups = append(groups,
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("policy").
				Title("Policy").
				Options(policies...).
				Value(&m.policy),
		).Title("Scheduling"),

		huh.NewGroup(
			huh.NewInput().
				Key("agents").
				Title("Agents").
				Description("id:capacity:backend, comma separated, in roster order").
				Placeholder("local:1:echo").
				Validate(func(s string) error {
					_, _, err := parseAgents(s)
					return err
				}).
				Value(&m.agents),

			huh.NewText().
				Key("backends").
				Title("Backends").
				Description(`One per line: "name: echo" or "name: command args..."`).
				Lines(4).
				Validate(func(s string) error {
					_, err := parseBackends(s)
					return err
				}).
				Value(&m.backends),
		).Title("Roster"),
	)

	m.form = huh.NewForm(groups...)
}

func (m *SettingsModel) validateTarget(path string) error {
	if m.checkTarget == nil {
		return nil
	}
	return m.checkTarget(path)
}

func (m SettingsModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m SettingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "esc" {
			m.aborted = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.err = m.save()
		return m, tea.Quit
	case huh.StateAborted:
		m.aborted = true
		return m, tea.Quit
	}
	return m, cmd
}

// save applies the form to the config and writes it to the chosen target.
func (m *SettingsModel) save() error {
	if err := m.applyFormToConfig(); err != nil {
		return err
	}
	if err := m.validateTarget(m.target); err != nil {
		return err
	}
	if err := config.Save(m.config, m.target); err != nil {
		return err
	}
	m.savedPath = m.target
	return nil
}

// applyFormToConfig copies the form fields into the config. The config is
// left untouched when the fields do not describe a valid roster.
func (m *SettingsModel) applyFormToConfig() error {
	agents, order, err := parseAgents(m.agents)
	if err != nil {
		return err
	}
	backends, err := parseBackends(m.backends)
	if err != nil {
		return err
	}

	next := *m.config
	next.Policy = m.policy
	next.Agents = agents
	next.AgentOrder = order
	next.Backends = backends
	if err := next.Validate(); err != nil {
		return err
	}
	*m.config = next
	return nil
}

func (m SettingsModel) View() string {
	var content string
	switch {
	case m.err != nil:
		content = lipgloss.NewStyle().
			Foreground(colorFailed).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	case m.savedPath != "":
		content = lipgloss.NewStyle().
			Foreground(colorDone).
			Bold(true).
			Render("✓ Saved " + m.savedPath)
	default:
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(1, 2)
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}

	title := StyleTitle.Foreground(colorAccent).Render("⚙ Settings")
	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content)) + "\n"
}

// SetSize updates the dimensions of the form.
func (m *SettingsModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil && w > 8 && h > 8 {
		m.form = m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SavedPath returns where the config was written, or "" if it was not.
func (m SettingsModel) SavedPath() string { return m.savedPath }

// Aborted reports whether the form was cancelled.
func (m SettingsModel) Aborted() bool { return m.aborted }

// Err returns the error that stopped the save, if any.
func (m SettingsModel) Err() error { return m.err }

func formatAgents(cfg *config.DispatchConfig) string {
	ids := cfg.AgentIDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s:%d:%s", id, cfg.Agents[id].Capacity, cfg.BackendFor(id)))
	}
	return strings.Join(parts, ", ")
}

// parseAgents reads "id[:capacity[:backend]]" entries. Capacity defaults to 1.
func parseAgents(s string) (map[string]config.AgentConfig, []string, error) {
	agents := make(map[string]config.AgentConfig)
	var order []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) > 3 {
			return nil, nil, fmt.Errorf("agent %q: want id:capacity:backend", entry)
		}
		id := strings.TrimSpace(parts[0])
		if id == "" {
			return nil, nil, fmt.Errorf("agent %q: missing id", entry)
		}
		if _, dup := agents[id]; dup {
			return nil, nil, fmt.Errorf("agent %q declared twice", id)
		}

		agent := config.AgentConfig{Capacity: 1}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil || n < 1 {
				return nil, nil, fmt.Errorf("agent %q: capacity must be a positive integer", id)
			}
			agent.Capacity = n
		}
		if len(parts) > 2 {
			agent.Backend = strings.TrimSpace(parts[2])
		}
		agents[id] = agent
		order = append(order, id)
	}
	if len(agents) == 0 {
		return nil, nil, fmt.Errorf("at least one agent is required")
	}
	return agents, order, nil
}

func formatBackends(backends map[string]config.BackendConfig) string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		b := backends[name]
		if b.Type == "echo" {
			lines = append(lines, name+": echo")
			continue
		}
		lines = append(lines, name+": "+strings.Join(append([]string{b.Command}, b.Args...), " "))
	}
	return strings.Join(lines, "\n")
}

// parseBackends reads one "name: echo" or "name: command args..." per line.
func parseBackends(s string) (map[string]config.BackendConfig, error) {
	backends := make(map[string]config.BackendConfig)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, rest, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("backend %q: want name: command", line)
		}
		if _, dup := backends[name]; dup {
			return nil, fmt.Errorf("backend %q declared twice", name)
		}
		fields := strings.Fields(rest)
		switch {
		case len(fields) == 0:
			return nil, fmt.Errorf("backend %q: missing command", name)
		case len(fields) == 1 && fields[0] == "echo":
			backends[name] = config.BackendConfig{Type: "echo"}
		default:
			backends[name] = config.BackendConfig{Type: "command", Command: fields[0], Args: fields[1:]}
		}
	}
	return backends, nil
}
