// Package dispatch drives a scheduling policy: it feeds assignments to agent
// backends concurrently and reports completions back to the policy.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/dispatch/internal/backend"
	"github.com/aristath/dispatch/internal/events"
	"github.com/aristath/dispatch/internal/logging"
	"github.com/aristath/dispatch/internal/metrics"
	"github.com/aristath/dispatch/internal/persistence"
	"github.com/aristath/dispatch/internal/scheduler"
)

// ErrStalled is returned when tasks remain pending, nothing is running and
// the policy cannot make a decision.
var ErrStalled = errors.New("dispatch stalled")

// TaskResult represents the outcome of a task execution.
type TaskResult struct {
	TaskID   string
	AgentID  string
	Success  bool
	Output   string
	Error    error
	Wait     time.Duration // registration to assignment
	Duration time.Duration // assignment to completion
}

// RunnerConfig configures the runner. Every collaborator except the clock is
// optional.
type RunnerConfig struct {
	Retry    RetryConfig
	Breakers *CircuitBreakerRegistry
	Bus      *events.EventBus
	Store    persistence.Store
	RunID    string // journal run; ignored without Store
	Metrics  *metrics.Collector
	Logger   *slog.Logger
	Now      func() time.Time
}

// Runner executes the assignments of one scheduler.
type Runner struct {
	config   RunnerConfig
	sched    *scheduler.SyncScheduler
	logger   *slog.Logger
	backends map[string]backend.Backend

	mu           sync.Mutex
	registeredAt map[string]time.Time
	results      []TaskResult
	total        int
	completed    int
	failed       int
	running      int
}

// NewRunner creates a runner around s. s is wrapped in a SyncScheduler; the
// caller must not use the unwrapped scheduler afterwards.
func NewRunner(cfg RunnerConfig, s scheduler.Scheduler) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "dispatch", "policy", s.Name())
	if cfg.Breakers == nil {
		cfg.Breakers = NewCircuitBreakerRegistry(logger)
	}

	return &Runner{
		config:       cfg,
		sched:        scheduler.Synchronized(s),
		logger:       logger,
		backends:     make(map[string]backend.Backend),
		registeredAt: make(map[string]time.Time),
	}
}

// Scheduler returns the synchronized scheduler the runner drives.
func (r *Runner) Scheduler() *scheduler.SyncScheduler {
	return r.sched
}

// AddAgent registers an agent and the backend that executes its tasks.
func (r *Runner) AddAgent(ctx context.Context, agent *scheduler.Agent, b backend.Backend) error {
	if b == nil {
		return fmt.Errorf("agent %s: no backend", agent.ID())
	}
	if err := r.sched.RegisterAgent(agent); err != nil {
		return err
	}

	r.mu.Lock()
	r.backends[agent.ID()] = b
	r.mu.Unlock()

	r.saveAgent(ctx, agent)
	r.logger.Debug("agent registered", "agent", agent.ID(), "capacity", agent.Capacity())
	return nil
}

// Submit registers tasks in order. It stops at the first rejected task.
func (r *Runner) Submit(ctx context.Context, tasks ...*scheduler.Task) error {
	for _, task := range tasks {
		if err := r.sched.RegisterTask(task); err != nil {
			return err
		}
		now := r.config.Now()

		r.mu.Lock()
		r.registeredAt[task.ID] = now
		r.total++
		r.mu.Unlock()

		if r.journaling() {
			payload, err := backend.PayloadString(task.Payload)
			if err != nil {
				payload = fmt.Sprintf("%v", task.Payload)
			}
			rec := persistence.TaskRecord{
				RunID:        r.config.RunID,
				ID:           task.ID,
				Payload:      payload,
				Dependencies: task.Dependencies,
				RegisteredAt: now,
			}
			if err := r.config.Store.SaveTask(ctx, rec); err != nil {
				r.logger.Warn("journal task failed", "task", task.ID, "error", err)
			}
		}
		r.publish(events.TopicTask, events.TaskRegisteredEvent{
			ID:           task.ID,
			Dependencies: task.Dependencies,
			Timestamp:    now,
		})
	}
	r.publishProgress()
	return nil
}

// MarkCompleted records tasks finished in an earlier run so that DAG
// dependents become eligible. Policies that ignore dependencies ignore it.
func (r *Runner) MarkCompleted(taskIDs ...string) {
	for _, id := range taskIDs {
		r.sched.MarkCompleted(scheduler.NewTask(id, nil))
	}
}

// Run schedules until nothing is pending and nothing is in flight.
// Results are returned in completion order. When pending tasks can no longer
// be scheduled the error wraps ErrStalled; on cancellation in-flight work is
// awaited and ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context) ([]TaskResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	quit := make(chan struct{})

	inflight := 0
	var runErr error

loop:
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		for {
			a, ok, err := r.sched.Schedule()
			if err != nil {
				runErr = fmt.Errorf("schedule: %w", err)
				break loop
			}
			if !ok {
				break
			}
			inflight++
			wait := r.onAssigned(ctx, a)
			g.Go(func() error {
				r.execute(gctx, a, wait)
				select {
				case done <- struct{}{}:
				case <-quit:
				}
				return nil
			})
		}

		if inflight == 0 {
			pending := r.sched.Pending()
			if len(pending) == 0 {
				break
			}
			runErr = r.stalled()
			break
		}

		select {
		case <-done:
			inflight--
		case <-ctx.Done():
		}
	}

	close(quit)
	_ = g.Wait()

	return r.Results(), runErr
}

// Results returns the results recorded so far.
func (r *Runner) Results() []TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TaskResult(nil), r.results...)
}

func (r *Runner) stalled() error {
	blocked := r.sched.Blocked()
	ids := make([]string, 0, len(blocked))
	for _, t := range blocked {
		ids = append(ids, t.ID)
	}
	r.logger.Warn("no schedulable task", "blocked", ids)
	return fmt.Errorf("%w: %d task(s) blocked: %s", ErrStalled, len(ids), strings.Join(ids, ", "))
}

func (r *Runner) onAssigned(ctx context.Context, a scheduler.Assignment) time.Duration {
	now := r.config.Now()

	r.mu.Lock()
	wait := now.Sub(r.registeredAt[a.Task.ID])
	r.running++
	r.mu.Unlock()

	r.logger.Info("task assigned", "task", a.Task.ID, "agent", a.Agent.ID(), "wait", wait)
	if r.config.Metrics != nil {
		r.config.Metrics.ObserveAssignment(r.sched.Name(), a.Agent.ID(), wait, r.busy(a.Agent))
	}
	if r.journaling() {
		if err := r.config.Store.RecordAssignment(ctx, r.config.RunID, a.Task.ID, a.Agent.ID(), now); err != nil {
			r.logger.Warn("journal assignment failed", "task", a.Task.ID, "error", err)
		}
		r.saveAgent(ctx, a.Agent)
	}
	r.publish(events.TopicTask, events.TaskAssignedEvent{
		ID:        a.Task.ID,
		AgentID:   a.Agent.ID(),
		Policy:    r.sched.Name(),
		Wait:      wait,
		Timestamp: now,
	})
	r.publishProgress()
	return wait
}

// execute runs one assignment to completion and reports it back.
func (r *Runner) execute(ctx context.Context, a scheduler.Assignment, wait time.Duration) {
	start := r.config.Now()
	agentID := a.Agent.ID()

	r.mu.Lock()
	b := r.backends[agentID]
	r.mu.Unlock()

	var resp backend.Response
	payload, err := backend.PayloadString(a.Task.Payload)
	switch {
	case err != nil:
	case b == nil:
		err = fmt.Errorf("agent %s has no backend", agentID)
	default:
		resp, err = sendWithRetry(ctx, b, backend.Message{
			TaskID:  a.Task.ID,
			AgentID: agentID,
			Payload: payload,
		}, r.config.Breakers.Get(agentID), r.config.Retry)
	}

	end := r.config.Now()
	result := TaskResult{
		TaskID:   a.Task.ID,
		AgentID:  agentID,
		Success:  err == nil,
		Output:   resp.Content,
		Error:    err,
		Wait:     wait,
		Duration: end.Sub(start),
	}

	// Free the slot before completion so dependents see a free agent
	r.sched.Release(a.Agent)
	if result.Success {
		r.sched.MarkCompleted(a.Task)
	}

	r.mu.Lock()
	r.running--
	if result.Success {
		r.completed++
	} else {
		r.failed++
	}
	r.results = append(r.results, result)
	r.mu.Unlock()

	r.report(ctx, a, result, end)
}

// report publishes and journals a finished task. It uses a context detached
// from cancellation so outcomes of interrupted tasks are still recorded.
func (r *Runner) report(ctx context.Context, a scheduler.Assignment, res TaskResult, at time.Time) {
	ctx = context.WithoutCancel(ctx)

	for _, line := range strings.Split(res.Output, "\n") {
		if line == "" {
			continue
		}
		r.publish(events.TopicTask, events.TaskOutputEvent{ID: res.TaskID, AgentID: res.AgentID, Line: line, Timestamp: at})
	}

	errMsg := ""
	if res.Success {
		r.logger.Info("task completed", "task", res.TaskID, "agent", res.AgentID, "duration", res.Duration)
		r.publish(events.TopicTask, events.TaskCompletedEvent{
			ID: res.TaskID, AgentID: res.AgentID, Result: res.Output, Duration: res.Duration, Timestamp: at,
		})
	} else {
		errMsg = res.Error.Error()
		r.logger.Error("task failed", "task", res.TaskID, "agent", res.AgentID, "error", res.Error)
		r.publish(events.TopicTask, events.TaskFailedEvent{
			ID: res.TaskID, AgentID: res.AgentID, Err: res.Error, Duration: res.Duration, Timestamp: at,
		})
	}

	busy := r.busy(a.Agent)
	r.publish(events.TopicAgent, events.AgentReleasedEvent{
		AgentID: res.AgentID, Busy: busy, Capacity: a.Agent.Capacity(), Timestamp: at,
	})

	if r.config.Metrics != nil {
		r.config.Metrics.ObserveCompletion(res.Success)
		r.config.Metrics.ObserveRelease(res.AgentID, busy)
	}
	if r.journaling() {
		if err := r.config.Store.RecordOutcome(ctx, r.config.RunID, res.TaskID, res.Success, res.Output, errMsg, at); err != nil {
			r.logger.Warn("journal outcome failed", "task", res.TaskID, "error", err)
		}
		r.saveAgent(ctx, a.Agent)
	}
	r.publishProgress()
}

// Progress returns the current counters.
func (r *Runner) Progress() events.ProgressEvent {
	pending := len(r.sched.Pending())

	r.mu.Lock()
	defer r.mu.Unlock()
	return events.ProgressEvent{
		Total:     r.total,
		Completed: r.completed,
		Running:   r.running,
		Failed:    r.failed,
		Pending:   pending,
		Timestamp: r.config.Now(),
	}
}

func (r *Runner) publishProgress() {
	if r.config.Bus == nil {
		return
	}
	r.config.Bus.Publish(events.TopicDispatch, r.Progress())
}

func (r *Runner) publish(topic string, ev events.Event) {
	if r.config.Bus != nil {
		r.config.Bus.Publish(topic, ev)
	}
}

func (r *Runner) journaling() bool {
	return r.config.Store != nil && r.config.RunID != ""
}

// busy reads an agent's load under the scheduler lock.
func (r *Runner) busy(agent *scheduler.Agent) int {
	if snap, ok := r.snapshot(agent.ID()); ok {
		return snap.Busy
	}
	return 0
}

func (r *Runner) snapshot(agentID string) (scheduler.AgentSnapshot, bool) {
	for _, snap := range r.sched.Snapshot() {
		if snap.ID == agentID {
			return snap, true
		}
	}
	return scheduler.AgentSnapshot{}, false
}

// saveAgent journals the agent's counters.
func (r *Runner) saveAgent(ctx context.Context, agent *scheduler.Agent) {
	if !r.journaling() {
		return
	}
	snap, ok := r.snapshot(agent.ID())
	if !ok {
		return
	}
	if err := r.config.Store.SaveAgent(ctx, r.config.RunID, snap); err != nil {
		r.logger.Warn("journal agent failed", "agent", snap.ID, "error", err)
	}
}
