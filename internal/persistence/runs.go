package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/dispatch/internal/scheduler"
	"github.com/google/uuid"
)

// CreateRun starts a new run with a fresh UUID.
func (s *SQLiteStore) CreateRun(ctx context.Context, policy string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	run := &Run{
		ID:        uuid.NewString(),
		Policy:    policy,
		Status:    RunRunning,
		StartedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, policy, status, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Policy, run.Status, toNanos(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// FinishRun stamps a run with its final status.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ? WHERE id = ?
	`, status, toNanos(s.now()), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun loads a single run.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var run Run
	var started, finished int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, policy, status, started_at, finished_at FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.Policy, &run.Status, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s: %w", runID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	run.StartedAt = fromNanos(started)
	run.FinishedAt = fromNanos(finished)
	return &run, nil
}

// ListRuns returns every run, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy, status, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var started, finished int64
		if err := rows.Scan(&run.ID, &run.Policy, &run.Status, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = fromNanos(started)
		run.FinishedAt = fromNanos(finished)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// SaveAgent upserts the current state of an agent.
func (s *SQLiteStore) SaveAgent(ctx context.Context, runID string, snap scheduler.AgentSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	lastUsed := int64(0)
	if snap.Used {
		lastUsed = toNanos(snap.LastUsed)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (run_id, id, capacity, busy, last_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, id) DO UPDATE SET
			capacity = excluded.capacity,
			busy = excluded.busy,
			last_used = excluded.last_used
	`, runID, snap.ID, snap.Capacity, snap.Busy, lastUsed)
	if err != nil {
		return fmt.Errorf("failed to save agent %s: %w", snap.ID, err)
	}
	return nil
}

// ListAgents returns the agents of a run in the order they were first saved.
func (s *SQLiteStore) ListAgents(ctx context.Context, runID string) ([]AgentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, id, capacity, busy, last_used
		FROM agents
		WHERE run_id = ?
		ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	agents := []AgentRecord{}
	for rows.Next() {
		var a AgentRecord
		var lastUsed int64
		if err := rows.Scan(&a.RunID, &a.ID, &a.Capacity, &a.Busy, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		a.LastUsed = fromNanos(lastUsed)
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}
	return agents, nil
}
