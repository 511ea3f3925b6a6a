package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/dispatch/internal/events"
)

// Task statuses shown in the list.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TaskState is what the pane knows about one task.
type TaskState struct {
	TaskID   string
	AgentID  string
	Status   string
	Output   []string
	Wait     time.Duration
	Duration time.Duration
}

// AgentPaneModel lists tasks with the agent running them and shows the
// selected task's output in a scrollable viewport.
type AgentPaneModel struct {
	tasks       map[string]*TaskState
	taskOrder   []string // registration order
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewAgentPaneModel creates a new agent pane model.
func NewAgentPaneModel() AgentPaneModel {
	return AgentPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// task returns the state for id, creating it if the registration event was
// dropped.
func (m *AgentPaneModel) task(id string) *TaskState {
	if ts, ok := m.tasks[id]; ok {
		return ts
	}
	ts := &TaskState{TaskID: id, Status: StatusPending}
	m.tasks[id] = ts
	m.taskOrder = append(m.taskOrder, id)
	if len(m.taskOrder) == 1 {
		m.selectedIdx = 0
		m.updateViewportContent()
	}
	return ts
}

// Update handles messages for the agent pane.
func (m AgentPaneModel) Update(msg tea.Msg) (AgentPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch {
		case key.Matches(msg, keys.Down):
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case key.Matches(msg, keys.Up):
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskRegisteredEvent:
		m.task(msg.ID)

	case events.TaskAssignedEvent:
		ts := m.task(msg.ID)
		ts.AgentID = msg.AgentID
		ts.Status = StatusRunning
		ts.Wait = msg.Wait
		ts.Output = nil

	case events.TaskOutputEvent:
		ts := m.task(msg.ID)
		ts.Output = append(ts.Output, msg.Line)
		if m.selectedTaskID() == msg.ID {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case events.TaskCompletedEvent:
		ts := m.task(msg.ID)
		ts.Status = StatusCompleted
		ts.Duration = msg.Duration
		ts.Output = append(ts.Output, fmt.Sprintf("\n[Completed on %s in %v]", msg.AgentID, msg.Duration))
		if m.selectedTaskID() == msg.ID {
			m.updateViewportContent()
		}

	case events.TaskFailedEvent:
		ts := m.task(msg.ID)
		ts.Status = StatusFailed
		ts.Duration = msg.Duration
		ts.Output = append(ts.Output, fmt.Sprintf("\n[Failed on %s: %v]", msg.AgentID, msg.Err))
		if m.selectedTaskID() == msg.ID {
			m.updateViewportContent()
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// View renders the agent pane.
func (m AgentPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 30
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	return paneStyle(m.focused).
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// renderTaskList renders the task list column.
func (m AgentPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(statusStyle(StatusPending).Render("Waiting..."))
	}
	for i, id := range m.taskOrder {
		ts := m.tasks[id]
		label := id
		if ts.AgentID != "" {
			label += " @" + ts.AgentID
		}
		if len(label) > width-4 {
			label = label[:width-7] + "..."
		}

		line := fmt.Sprintf("%s %s", StatusIcon(ts.Status), label)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

func (m AgentPaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// Selected returns the selected task's state, or nil.
func (m AgentPaneModel) Selected() *TaskState {
	return m.tasks[m.selectedTaskID()]
}

// updateViewportContent shows the selected task's output.
func (m *AgentPaneModel) updateViewportContent() {
	ts := m.tasks[m.selectedTaskID()]
	if ts == nil {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	if len(ts.Output) == 0 {
		m.viewport.SetContent(statusStyle(StatusPending).Render(fmt.Sprintf("%s is %s", ts.TaskID, ts.Status)))
		return
	}
	m.viewport.SetContent(strings.Join(ts.Output, "\n"))
	m.viewport.GotoBottom()
}

// SetSize updates the pane dimensions.
func (m *AgentPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(m.width-30-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetFocused updates the focus state.
func (m *AgentPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
