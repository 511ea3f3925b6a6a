package scheduler

// DAGScheduler assigns the first pending task whose dependencies have all been
// marked completed, in registration order, to the first available agent.
//
// A dependency that never completes blocks its dependents forever; nothing
// here detects that at schedule time.
type DAGScheduler struct {
	registry
	completed      map[string]struct{}
	graph          *depGraph
	cycleDetection bool
}

// NewDAGScheduler creates a DAG-aware scheduler. Cycle detection is on unless
// disabled with WithCycleDetection(false).
func NewDAGScheduler(opts ...Option) *DAGScheduler {
	o := buildOptions(opts)
	return &DAGScheduler{
		registry:       newRegistry(),
		completed:      make(map[string]struct{}),
		graph:          newDepGraph(),
		cycleDetection: o.cycleDetection,
	}
}

// Name returns the policy name.
func (s *DAGScheduler) Name() string { return PolicyDAG }

// RegisterTask queues the task. With cycle detection on, a task that would
// close a dependency cycle (including depending on itself) is rejected.
func (s *DAGScheduler) RegisterTask(task *Task) error {
	if task != nil && task.ID != "" {
		if _, pending := s.pendingIDs[task.ID]; !pending {
			if err := s.graph.add(task, s.cycleDetection); err != nil {
				return err
			}
		}
	}
	return s.registry.RegisterTask(task)
}

// MarkCompleted records the task as done so its dependents can become eligible.
func (s *DAGScheduler) MarkCompleted(task *Task) {
	if task == nil {
		return
	}
	s.completed[task.ID] = struct{}{}
}

// IsCompleted reports whether the task ID has been marked completed.
func (s *DAGScheduler) IsCompleted(id string) bool {
	_, ok := s.completed[id]
	return ok
}

// Schedule assigns the first eligible task to the first available agent.
func (s *DAGScheduler) Schedule() (Assignment, bool, error) {
	avail := s.AvailableAgents()
	if len(avail) == 0 {
		return Assignment{}, false, nil
	}

	for idx, task := range s.tasks {
		if s.eligible(task) {
			return s.assign(idx, avail[0])
		}
	}
	return Assignment{}, false, nil
}

// Blocked returns pending tasks that still wait on at least one dependency.
func (s *DAGScheduler) Blocked() []*Task {
	var blocked []*Task
	for _, task := range s.tasks {
		if !s.eligible(task) {
			blocked = append(blocked, task)
		}
	}
	return blocked
}

// Order returns every registered task ID in a dependency-respecting order.
func (s *DAGScheduler) Order() ([]string, error) {
	return s.graph.sort()
}

func (s *DAGScheduler) eligible(task *Task) bool {
	for _, depID := range task.Dependencies {
		if _, done := s.completed[depID]; !done {
			return false
		}
	}
	return true
}
