package scheduler

import (
	"fmt"
	"strings"
)

// Task is a unit of work waiting for an agent.
// Dependencies hold task IDs, never references, so eligibility is resolved
// against a completion set instead of a live graph.
type Task struct {
	ID           string   // Unique, caller-assigned identifier
	Payload      any      // Opaque to the scheduler
	Dependencies []string // Task IDs that must complete first, in declaration order
}

// NewTask creates a task with the given dependencies.
func NewTask(id string, payload any, deps ...string) *Task {
	t := &Task{ID: id, Payload: payload}
	if len(deps) > 0 {
		t.Dependencies = append([]string(nil), deps...)
	}
	return t
}

// Equal reports whether both tasks carry the same ID.
func (t *Task) Equal(other *Task) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.ID == other.ID
}

func (t *Task) String() string {
	if len(t.Dependencies) == 0 {
		return fmt.Sprintf("task %s", t.ID)
	}
	return fmt.Sprintf("task %s (deps: %s)", t.ID, strings.Join(t.Dependencies, ","))
}
