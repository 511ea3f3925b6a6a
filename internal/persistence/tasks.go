package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveTask saves or updates a task and its dependencies.
// Uses ON CONFLICT to make saves idempotent. A zero RegisteredAt is stamped
// with the current time and an empty Status defaults to pending.
func (s *SQLiteStore) SaveTask(ctx context.Context, rec TaskRecord) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if rec.Status == "" {
		rec.Status = TaskPending
	}
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = s.now()
	}

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (run_id, id, payload, status, agent_id, output, error, registered_at, assigned_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, id) DO UPDATE SET
			payload = excluded.payload,
			status = excluded.status,
			agent_id = excluded.agent_id,
			output = excluded.output,
			error = excluded.error,
			registered_at = excluded.registered_at,
			assigned_at = excluded.assigned_at,
			completed_at = excluded.completed_at
	`, rec.RunID, rec.ID, rec.Payload, rec.Status, rec.AgentID, rec.Output, rec.Error,
		toNanos(rec.RegisteredAt), toNanos(rec.AssignedAt), toNanos(rec.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	// Delete existing dependencies for this task
	_, err = tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE run_id = ? AND task_id = ?`, rec.RunID, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}

	// Dependencies may name tasks that were never registered, so there is no
	// foreign key on depends_on_id.
	for i, depID := range rec.Dependencies {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_dependencies (run_id, task_id, depends_on_id, position)
			VALUES (?, ?, ?, ?)
		`, rec.RunID, rec.ID, depID, i)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", rec.ID, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RecordAssignment marks a task as running on agentID.
func (s *SQLiteStore) RecordAssignment(ctx context.Context, runID, taskID, agentID string, at time.Time) error {
	return s.updateTask(ctx, runID, taskID, `
		UPDATE tasks
		SET status = ?, agent_id = ?, assigned_at = ?, output = '', error = '', completed_at = 0
		WHERE run_id = ? AND id = ?
	`, TaskRunning, agentID, toNanos(at), runID, taskID)
}

// RecordOutcome stores the result of a task's execution.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, runID, taskID string, success bool, output, errMsg string, at time.Time) error {
	status := TaskFailed
	if success {
		status = TaskCompleted
	}
	return s.updateTask(ctx, runID, taskID, `
		UPDATE tasks
		SET status = ?, output = ?, error = ?, completed_at = ?
		WHERE run_id = ? AND id = ?
	`, status, output, errMsg, toNanos(at), runID, taskID)
}

func (s *SQLiteStore) updateTask(ctx context.Context, runID, taskID, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", taskID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %s/%s", runID, taskID)
	}
	return nil
}

// ListTasks returns every task of a run in registration order.
func (s *SQLiteStore) ListTasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	return s.queryTasks(ctx, runID, `
		SELECT run_id, id, payload, status, agent_id, output, error, registered_at, assigned_at, completed_at
		FROM tasks
		WHERE run_id = ?
		ORDER BY rowid
	`)
}

// PendingTasks returns, in registration order, the tasks of a run that never
// finished: those still pending and those that were running when the run
// stopped. includeFailed adds the failed ones.
func (s *SQLiteStore) PendingTasks(ctx context.Context, runID string, includeFailed bool) ([]TaskRecord, error) {
	statuses := `'pending', 'running'`
	if includeFailed {
		statuses += `, 'failed'`
	}
	return s.queryTasks(ctx, runID, `
		SELECT run_id, id, payload, status, agent_id, output, error, registered_at, assigned_at, completed_at
		FROM tasks
		WHERE run_id = ? AND status IN (`+statuses+`)
		ORDER BY rowid
	`)
}

func (s *SQLiteStore) queryTasks(ctx context.Context, runID, query string) ([]TaskRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	tasks := []TaskRecord{}
	for rows.Next() {
		var rec TaskRecord
		var registered, assigned, completed int64
		if err := rows.Scan(&rec.RunID, &rec.ID, &rec.Payload, &rec.Status, &rec.AgentID, &rec.Output, &rec.Error,
			&registered, &assigned, &completed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		rec.RegisteredAt = fromNanos(registered)
		rec.AssignedAt = fromNanos(assigned)
		rec.CompletedAt = fromNanos(completed)
		rec.Dependencies = []string{}
		tasks = append(tasks, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	deps, err := s.dependencies(ctx, runID)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if d, ok := deps[tasks[i].ID]; ok {
			tasks[i].Dependencies = d
		}
	}
	return tasks, nil
}

// dependencies loads every dependency edge of a run keyed by task id.
func (s *SQLiteStore) dependencies(ctx context.Context, runID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, depends_on_id
		FROM task_dependencies
		WHERE run_id = ?
		ORDER BY task_id, position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	deps := make(map[string][]string)
	for rows.Next() {
		var taskID, depID string
		if err := rows.Scan(&taskID, &depID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps[taskID] = append(deps[taskID], depID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}
	return deps, nil
}
