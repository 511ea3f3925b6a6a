package scheduler

import "errors"

var (
	// ErrCapacityExceeded is returned by Agent.AssignTask when the agent is full.
	// Seeing it from Schedule means a policy picked an agent it should not have.
	ErrCapacityExceeded = errors.New("agent is at capacity")

	// ErrInvalidState reports a rejected registration: duplicate IDs, nil
	// values, bad capacities or dependency cycles.
	ErrInvalidState = errors.New("invalid scheduler state")
)
