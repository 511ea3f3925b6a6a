package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/dispatch/internal/events"
)

func feed(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestModel_TracksTaskLifecycle(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := feed(t, New(bus, "dag"),
		tea.WindowSizeMsg{Width: 120, Height: 40},
		events.TaskRegisteredEvent{ID: "build"},
		events.TaskRegisteredEvent{ID: "test", Dependencies: []string{"build"}},
		events.TaskAssignedEvent{ID: "build", AgentID: "a1", Wait: time.Second},
		events.TaskOutputEvent{ID: "build", Line: "compiling"},
		events.TaskCompletedEvent{ID: "build", AgentID: "a1", Duration: 2 * time.Second},
		events.TaskAssignedEvent{ID: "test", AgentID: "a1"},
		events.TaskFailedEvent{ID: "test", AgentID: "a1", Err: errors.New("exit 1")},
	)

	tests := []struct {
		id, status, agent string
	}{
		{"build", StatusCompleted, "a1"},
		{"test", StatusFailed, "a1"},
	}
	for _, tt := range tests {
		ts := m.agentPane.tasks[tt.id]
		if ts == nil {
			t.Fatalf("task %s not tracked", tt.id)
		}
		if ts.Status != tt.status || ts.AgentID != tt.agent {
			t.Errorf("%s = %+v", tt.id, ts)
		}
	}
	if got := m.agentPane.tasks["build"].Output[0]; got != "compiling" {
		t.Errorf("build output = %q", got)
	}
	if order := strings.Join(m.agentPane.taskOrder, ","); order != "build,test" {
		t.Errorf("task order = %s", order)
	}
}

func TestModel_UnregisteredTaskIsCreated(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := feed(t, New(bus, "lru"), events.TaskAssignedEvent{ID: "late", AgentID: "a2"})
	if ts := m.agentPane.tasks["late"]; ts == nil || ts.Status != StatusRunning {
		t.Fatalf("late task = %+v", ts)
	}
}

func TestModel_Navigation(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := feed(t, New(bus, "dag"),
		tea.WindowSizeMsg{Width: 100, Height: 30},
		events.TaskRegisteredEvent{ID: "one"},
		events.TaskRegisteredEvent{ID: "two"},
		tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")},
	)
	if sel := m.agentPane.Selected(); sel == nil || sel.TaskID != "two" {
		t.Fatalf("selected = %+v, want two", sel)
	}

	m = feed(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPane != PaneProgress {
		t.Errorf("focused = %v, want progress", m.focusedPane)
	}
	// Selection keys are ignored while the task list is not focused
	m = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	if sel := m.agentPane.Selected(); sel.TaskID != "two" {
		t.Errorf("selection moved while unfocused")
	}

	m = feed(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.focusedPane != PaneTasks {
		t.Errorf("focused = %v, want tasks", m.focusedPane)
	}
}

func TestModel_ProgressView(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := feed(t, New(bus, "round-robin"),
		tea.WindowSizeMsg{Width: 140, Height: 40},
		events.TaskAssignedEvent{ID: "t1", AgentID: "a1"},
		events.AgentReleasedEvent{AgentID: "a1", Busy: 0, Capacity: 2},
		events.ProgressEvent{Total: 2, Completed: 1, Pending: 1},
	)

	view := m.View()
	for _, want := range []string{"round-robin", "1/2", "a1", "1 served"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "Run finished") {
		t.Error("run is not finished yet")
	}

	m = feed(t, m, events.ProgressEvent{Total: 2, Completed: 2})
	if !strings.Contains(m.View(), "Run finished") {
		t.Error("finished run should be shown")
	}
}

func TestModel_BusClosedAndQuit(t *testing.T) {
	bus := events.NewEventBus()
	m := New(bus, "dag")
	bus.Close()

	msg := m.Init()()
	if _, ok := msg.(busClosedMsg); !ok {
		t.Fatalf("Init() on closed bus produced %T", msg)
	}
	m = feed(t, m, msg, tea.WindowSizeMsg{Width: 80, Height: 20})
	if !m.finished {
		t.Error("model should note the closed bus")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !next.(Model).quitting {
		t.Error("q should quit")
	}
}

func TestModel_QuitDetachesFromBus(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	m := New(bus, "dag")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	// The subscription is closed, so waiting for an event returns at once
	if _, ok := m.Init()().(busClosedMsg); !ok {
		t.Fatal("quitting should close the event subscription")
	}
	bus.Publish(events.TopicTask, events.TaskRegisteredEvent{ID: "after"})
	if bus.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0 once detached", bus.Dropped())
	}
}
