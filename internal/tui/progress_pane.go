package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/dispatch/internal/events"
)

// agentLoad tracks one agent as seen through events.
type agentLoad struct {
	busy     int
	capacity int // 0 until the first release reports it
	served   int
}

// ProgressPaneModel shows run totals, a progress bar and per-agent load.
type ProgressPaneModel struct {
	policy  string
	last    events.ProgressEvent
	agents  map[string]*agentLoad
	width   int
	height  int
	focused bool
}

// NewProgressPaneModel creates a progress pane for a run using policy.
func NewProgressPaneModel(policy string) ProgressPaneModel {
	return ProgressPaneModel{
		policy: policy,
		agents: make(map[string]*agentLoad),
	}
}

func (m *ProgressPaneModel) agent(id string) *agentLoad {
	a, ok := m.agents[id]
	if !ok {
		a = &agentLoad{}
		m.agents[id] = a
	}
	return a
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case events.ProgressEvent:
		m.last = msg

	case events.TaskAssignedEvent:
		a := m.agent(msg.AgentID)
		a.busy++
		a.served++

	case events.AgentReleasedEvent:
		a := m.agent(msg.AgentID)
		a.busy = msg.Busy
		a.capacity = msg.Capacity
	}
	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress · " + m.policy)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	p := m.last
	b.WriteString(fmt.Sprintf("Total:     %d\n", p.Total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", statusStyle(StatusCompleted).Render(fmt.Sprintf("%d", p.Completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", statusStyle(StatusRunning).Render(fmt.Sprintf("%d", p.Running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", statusStyle(StatusFailed).Render(fmt.Sprintf("%d", p.Failed))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", statusStyle(StatusPending).Render(fmt.Sprintf("%d", p.Pending))))
	b.WriteString("\n")

	if p.Total > 0 {
		b.WriteString(m.renderBar(min(m.width-12, 40)))
		b.WriteString("\n")
	}
	if p.Done() {
		b.WriteString(statusStyle(StatusCompleted).Render("Run finished"))
		b.WriteString("\n")
	}

	if len(m.agents) > 0 {
		b.WriteString("\n")
		ids := make([]string, 0, len(m.agents))
		for id := range m.agents {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			b.WriteString(m.renderAgent(id))
			b.WriteString("\n")
		}
	}

	return paneStyle(m.focused).
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m ProgressPaneModel) renderBar(barWidth int) string {
	p := m.last
	barWidth = max(barWidth, 1)
	completedWidth := (p.Completed * barWidth) / p.Total
	failedWidth := (p.Failed * barWidth) / p.Total
	runningWidth := (p.Running * barWidth) / p.Total
	pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

	bar := statusStyle(StatusCompleted).Render(strings.Repeat("=", max(0, completedWidth)))
	bar += statusStyle(StatusFailed).Render(strings.Repeat("!", max(0, failedWidth)))
	bar += statusStyle(StatusRunning).Render(strings.Repeat("-", max(0, runningWidth)))
	bar += statusStyle(StatusPending).Render(strings.Repeat(".", max(0, pendingWidth)))

	return fmt.Sprintf("[%s]  %d/%d", bar, p.Completed+p.Failed, p.Total)
}

func (m ProgressPaneModel) renderAgent(id string) string {
	a := m.agents[id]
	capacity := "?"
	switch {
	case a.capacity >= maxDisplayCapacity:
		capacity = "∞"
	case a.capacity > 0:
		capacity = fmt.Sprintf("%d", a.capacity)
	}
	return fmt.Sprintf("%-12s %d/%s busy  %d served", id, a.busy, capacity, a.served)
}

// maxDisplayCapacity is the point above which a capacity is shown as unlimited.
const maxDisplayCapacity = 1 << 30

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
