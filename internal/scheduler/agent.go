package scheduler

import (
	"fmt"
	"math"
	"time"
)

// UnlimitedCapacity makes an agent accept any number of concurrent tasks.
const UnlimitedCapacity = math.MaxInt

// Clock supplies the timestamps used for agent recency.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now, which carries a monotonic reading.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// AgentOption configures an Agent at construction.
type AgentOption func(*Agent)

// WithClock overrides the clock used to stamp LastUsed.
func WithClock(c Clock) AgentOption {
	return func(a *Agent) {
		if c != nil {
			a.clock = c
		}
	}
}

// Agent is a capacity-bounded executor. Its busy count and recency stamp are
// only changed through AssignTask and CompleteTask.
type Agent struct {
	id       string
	capacity int
	busy     int
	lastUsed time.Time
	used     bool
	clock    Clock
}

// NewAgent creates an idle agent. Capacity must be at least 1.
func NewAgent(id string, capacity int, opts ...AgentOption) (*Agent, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is empty: %w", ErrInvalidState)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("agent %q capacity %d must be positive: %w", id, capacity, ErrInvalidState)
	}

	a := &Agent{
		id:       id,
		capacity: capacity,
		clock:    SystemClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Capacity returns the maximum number of concurrent assignments.
func (a *Agent) Capacity() int { return a.capacity }

// Busy returns the number of in-flight assignments.
func (a *Agent) Busy() int { return a.busy }

// LastUsed returns the time of the most recent assignment.
// The boolean is false if the agent has never been assigned a task.
func (a *Agent) LastUsed() (time.Time, bool) {
	return a.lastUsed, a.used
}

// CanAccept reports whether the agent has a free slot.
func (a *Agent) CanAccept() bool {
	return a.busy < a.capacity
}

// AssignTask takes one slot and stamps the recency time.
// The task itself is not inspected.
func (a *Agent) AssignTask(task *Task) error {
	if !a.CanAccept() {
		return fmt.Errorf("agent %q (%d/%d): %w", a.id, a.busy, a.capacity, ErrCapacityExceeded)
	}
	a.busy++
	a.lastUsed = a.clock.Now()
	a.used = true
	return nil
}

// CompleteTask frees one slot. Extra completion signals are ignored so busy
// never goes negative.
func (a *Agent) CompleteTask() {
	if a.busy > 0 {
		a.busy--
	}
}

func (a *Agent) String() string {
	return fmt.Sprintf("agent %s busy=%d/%d", a.id, a.busy, a.capacity)
}

// usedBefore orders agents by recency. Never-used agents sort first.
func usedBefore(a, b *Agent) bool {
	switch {
	case !a.used && !b.used:
		return false
	case !a.used:
		return true
	case !b.used:
		return false
	}
	return a.lastUsed.Before(b.lastUsed)
}

// AgentSnapshot is a point-in-time copy of an agent's counters.
type AgentSnapshot struct {
	ID       string
	Capacity int
	Busy     int
	LastUsed time.Time
	Used     bool
}
