package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicAgent    = "agent"
	TopicDispatch = "dispatch"
)

// Event type constants
const (
	EventTypeTaskRegistered = "task.registered"
	EventTypeTaskAssigned   = "task.assigned"
	EventTypeTaskOutput     = "task.output"
	EventTypeTaskCompleted  = "task.completed"
	EventTypeTaskFailed     = "task.failed"
	EventTypeAgentReleased  = "agent.released"
	EventTypeProgress       = "dispatch.progress"
)

// TaskRegisteredEvent is published when a task enters the pending queue.
type TaskRegisteredEvent struct {
	ID           string
	Dependencies []string
	Timestamp    time.Time
}

func (e TaskRegisteredEvent) EventType() string { return EventTypeTaskRegistered }
func (e TaskRegisteredEvent) TaskID() string    { return e.ID }

// TaskAssignedEvent is published when a policy hands a task to an agent.
type TaskAssignedEvent struct {
	ID        string
	AgentID   string
	Policy    string
	Wait      time.Duration
	Timestamp time.Time
}

func (e TaskAssignedEvent) EventType() string { return EventTypeTaskAssigned }
func (e TaskAssignedEvent) TaskID() string    { return e.ID }

// TaskOutputEvent carries one line of backend output.
type TaskOutputEvent struct {
	ID        string
	AgentID   string
	Line      string
	Timestamp time.Time
}

func (e TaskOutputEvent) EventType() string { return EventTypeTaskOutput }
func (e TaskOutputEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a backend finished a task successfully.
type TaskCompletedEvent struct {
	ID        string
	AgentID   string
	Result    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task's backend call failed for good.
type TaskFailedEvent struct {
	ID        string
	AgentID   string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// AgentReleasedEvent is published after an agent's slot is freed.
type AgentReleasedEvent struct {
	AgentID   string
	Busy      int
	Capacity  int
	Timestamp time.Time
}

func (e AgentReleasedEvent) EventType() string { return EventTypeAgentReleased }
func (e AgentReleasedEvent) TaskID() string    { return "" }

// ProgressEvent summarizes the run after every state change.
type ProgressEvent struct {
	Total     int
	Completed int
	Running   int
	Failed    int
	Pending   int
	Timestamp time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return "" }

// Done reports whether every task has finished one way or another.
func (e ProgressEvent) Done() bool {
	return e.Total > 0 && e.Completed+e.Failed >= e.Total
}
