package scheduler

import (
	"fmt"
	"slices"
	"strings"
)

// Assignment is one scheduling decision.
type Assignment struct {
	Task  *Task
	Agent *Agent
}

// Scheduler owns a pending-task queue and an agent roster and makes one
// assignment decision per Schedule call.
//
// Implementations are not safe for concurrent use; wrap them with
// Synchronized when more than one goroutine drives them.
type Scheduler interface {
	// Name returns the policy name.
	Name() string

	// RegisterTask appends a task to the pending queue.
	RegisterTask(task *Task) error

	// RegisterAgent adds an agent to the roster.
	RegisterAgent(agent *Agent) error

	// AvailableAgents returns roster agents that can accept work, in roster order.
	AvailableAgents() []*Agent

	// Pending returns the pending tasks in registration order.
	Pending() []*Task

	// Agents returns the full roster in registration order.
	Agents() []*Agent

	// Schedule performs at most one assignment. ok is false when no eligible
	// task/agent pair exists; that is an expected outcome, not an error.
	Schedule() (a Assignment, ok bool, err error)
}

// Completer is implemented by policies that track task completion.
type Completer interface {
	MarkCompleted(task *Task)
}

// Policy names accepted by New.
const (
	PolicyDAG        = "dag"
	PolicyLRU        = "lru"
	PolicyRoundRobin = "round-robin"
)

// Policies returns the canonical policy names.
func Policies() []string {
	return []string{PolicyDAG, PolicyLRU, PolicyRoundRobin}
}

// Option configures a scheduler created through New.
type Option func(*options)

type options struct {
	cycleDetection bool
}

// WithCycleDetection toggles dependency cycle checks for the DAG policy.
// Other policies ignore it.
func WithCycleDetection(enabled bool) Option {
	return func(o *options) { o.cycleDetection = enabled }
}

func buildOptions(opts []Option) options {
	o := options{cycleDetection: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates a scheduler for the named policy.
func New(policy string, opts ...Option) (Scheduler, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case PolicyDAG:
		return NewDAGScheduler(opts...), nil
	case PolicyLRU:
		return NewLRUScheduler(), nil
	case PolicyRoundRobin, "rr", "rcs", "roundrobin":
		return NewRoundRobinScheduler(), nil
	default:
		return nil, fmt.Errorf("unknown scheduling policy: %q", policy)
	}
}

// registry is the state shared by every policy: pending tasks in FIFO order
// and the agent roster in registration order.
type registry struct {
	tasks      []*Task
	pendingIDs map[string]struct{}
	agents     []*Agent
	agentIDs   map[string]struct{}
}

func newRegistry() registry {
	return registry{
		pendingIDs: make(map[string]struct{}),
		agentIDs:   make(map[string]struct{}),
	}
}

// RegisterTask appends the task. A task whose ID is already pending is rejected.
func (r *registry) RegisterTask(task *Task) error {
	if task == nil {
		return fmt.Errorf("nil task: %w", ErrInvalidState)
	}
	if task.ID == "" {
		return fmt.Errorf("task id is empty: %w", ErrInvalidState)
	}
	if _, exists := r.pendingIDs[task.ID]; exists {
		return fmt.Errorf("task %q is already pending: %w", task.ID, ErrInvalidState)
	}

	r.tasks = append(r.tasks, task)
	r.pendingIDs[task.ID] = struct{}{}
	return nil
}

// RegisterAgent appends the agent. An agent ID seen before is rejected.
func (r *registry) RegisterAgent(agent *Agent) error {
	if agent == nil {
		return fmt.Errorf("nil agent: %w", ErrInvalidState)
	}
	if _, exists := r.agentIDs[agent.ID()]; exists {
		return fmt.Errorf("agent %q already registered: %w", agent.ID(), ErrInvalidState)
	}

	r.agents = append(r.agents, agent)
	r.agentIDs[agent.ID()] = struct{}{}
	return nil
}

// AvailableAgents returns agents with a free slot, in roster order.
func (r *registry) AvailableAgents() []*Agent {
	avail := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if a.CanAccept() {
			avail = append(avail, a)
		}
	}
	return avail
}

// Pending returns a copy of the pending queue.
func (r *registry) Pending() []*Task {
	return append([]*Task(nil), r.tasks...)
}

// Agents returns a copy of the roster.
func (r *registry) Agents() []*Agent {
	return append([]*Agent(nil), r.agents...)
}

// assign hands the task at idx to agent and removes it from the queue.
// The queue is untouched if the agent refuses.
func (r *registry) assign(idx int, agent *Agent) (Assignment, bool, error) {
	task := r.tasks[idx]
	if err := agent.AssignTask(task); err != nil {
		return Assignment{}, false, fmt.Errorf("assigning %s: %w", task.ID, err)
	}

	r.tasks = slices.Delete(r.tasks, idx, idx+1)
	delete(r.pendingIDs, task.ID)
	return Assignment{Task: task, Agent: agent}, true, nil
}
