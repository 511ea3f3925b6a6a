package scheduler

import "sync"

// SyncScheduler serializes every call into a wrapped scheduler, including the
// agent and completion updates made on behalf of callers. It is the only
// piece of the package that is safe to share between goroutines.
type SyncScheduler struct {
	mu    sync.Mutex
	inner Scheduler
}

// Synchronized wraps s so it can be driven from several goroutines.
// Wrapping an already synchronized scheduler returns it unchanged.
func Synchronized(s Scheduler) *SyncScheduler {
	if ss, ok := s.(*SyncScheduler); ok {
		return ss
	}
	return &SyncScheduler{inner: s}
}

func (s *SyncScheduler) Name() string { return s.inner.Name() }

func (s *SyncScheduler) RegisterTask(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.RegisterTask(task)
}

func (s *SyncScheduler) RegisterAgent(agent *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.RegisterAgent(agent)
}

func (s *SyncScheduler) AvailableAgents() []*Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.AvailableAgents()
}

func (s *SyncScheduler) Pending() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Pending()
}

func (s *SyncScheduler) Agents() []*Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Agents()
}

func (s *SyncScheduler) Schedule() (Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Schedule()
}

// MarkCompleted forwards to the wrapped policy if it tracks completion.
// It is a no-op for policies that do not.
func (s *SyncScheduler) MarkCompleted(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.inner.(Completer); ok {
		c.MarkCompleted(task)
	}
}

// Release frees one slot on the agent under the scheduler lock.
func (s *SyncScheduler) Release(agent *Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent.CompleteTask()
}

// Blocked returns the wrapped policy's blocked tasks when it reports them,
// otherwise every pending task.
func (s *SyncScheduler) Blocked() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.inner.(interface{ Blocked() []*Task }); ok {
		return b.Blocked()
	}
	return s.inner.Pending()
}

// Snapshot returns the busy count of every agent, in roster order.
func (s *SyncScheduler) Snapshot() []AgentSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	agents := s.inner.Agents()
	snaps := make([]AgentSnapshot, 0, len(agents))
	for _, a := range agents {
		last, used := a.LastUsed()
		snaps = append(snaps, AgentSnapshot{
			ID:       a.ID(),
			Capacity: a.Capacity(),
			Busy:     a.Busy(),
			LastUsed: last,
			Used:     used,
		})
	}
	return snaps
}
