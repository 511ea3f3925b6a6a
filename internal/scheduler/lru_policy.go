package scheduler

// LRUScheduler takes pending tasks strictly FIFO and gives each to the
// available agent that was used least recently. Agents that were never used
// count as the oldest; ties go to the earlier agent in the roster.
type LRUScheduler struct {
	registry
}

// NewLRUScheduler creates a least-recently-used scheduler.
func NewLRUScheduler() *LRUScheduler {
	return &LRUScheduler{registry: newRegistry()}
}

// Name returns the policy name.
func (s *LRUScheduler) Name() string { return PolicyLRU }

// Schedule assigns the head task to the least recently used available agent.
func (s *LRUScheduler) Schedule() (Assignment, bool, error) {
	avail := s.AvailableAgents()
	if len(avail) == 0 || len(s.tasks) == 0 {
		return Assignment{}, false, nil
	}

	// Strict less-than keeps the first of equally recent agents.
	oldest := avail[0]
	for _, a := range avail[1:] {
		if usedBefore(a, oldest) {
			oldest = a
		}
	}
	return s.assign(0, oldest)
}
