package scheduler

// RoundRobinScheduler takes pending tasks FIFO and cycles a cursor over the
// agents that are available at the time of each call. The cursor indexes the
// live available list, so the same value can land on different agents as
// capacity frees up or runs out.
type RoundRobinScheduler struct {
	registry
	cursor int
}

// NewRoundRobinScheduler creates a round-robin scheduler with the cursor at zero.
func NewRoundRobinScheduler() *RoundRobinScheduler {
	return &RoundRobinScheduler{registry: newRegistry()}
}

// Name returns the policy name.
func (s *RoundRobinScheduler) Name() string { return PolicyRoundRobin }

// Cursor returns the number of successful assignments made so far.
func (s *RoundRobinScheduler) Cursor() int { return s.cursor }

// Schedule assigns the head task to available[cursor % len(available)].
func (s *RoundRobinScheduler) Schedule() (Assignment, bool, error) {
	avail := s.AvailableAgents()
	if len(avail) == 0 || len(s.tasks) == 0 {
		return Assignment{}, false, nil
	}

	agent := avail[s.cursor%len(avail)]
	a, ok, err := s.assign(0, agent)
	if ok {
		s.cursor++
	}
	return a, ok, err
}
