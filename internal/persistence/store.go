package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/dispatch/internal/scheduler"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// opTimeout bounds every single store operation.
const opTimeout = 5 * time.Second

// Run statuses.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunStalled  = "stalled"
	RunAborted  = "aborted"
)

// Task statuses.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Run is one invocation of the dispatch loop.
type Run struct {
	ID         string
	Policy     string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// TaskRecord is the journal row for one task within a run.
type TaskRecord struct {
	RunID        string
	ID           string
	Payload      string
	Dependencies []string
	Status       string
	AgentID      string
	Output       string
	Error        string
	RegisteredAt time.Time
	AssignedAt   time.Time
	CompletedAt  time.Time
}

// Task rebuilds a scheduler task from the record. The payload comes back as
// the string that was journaled.
func (r TaskRecord) Task() *scheduler.Task {
	return scheduler.NewTask(r.ID, r.Payload, r.Dependencies...)
}

// AgentRecord is the last known state of an agent within a run.
type AgentRecord struct {
	RunID    string
	ID       string
	Capacity int
	Busy     int
	LastUsed time.Time
}

// Store defines the persistence interface for the dispatch journal.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, policy string) (*Run, error)
	FinishRun(ctx context.Context, runID, status string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context) ([]Run, error)

	// Tasks
	SaveTask(ctx context.Context, rec TaskRecord) error
	RecordAssignment(ctx context.Context, runID, taskID, agentID string, at time.Time) error
	RecordOutcome(ctx context.Context, runID, taskID string, success bool, output, errMsg string, at time.Time) error
	ListTasks(ctx context.Context, runID string) ([]TaskRecord, error)
	PendingTasks(ctx context.Context, runID string, includeFailed bool) ([]TaskRecord, error)

	// Agents
	SaveAgent(ctx context.Context, runID string, snap scheduler.AgentSnapshot) error
	ListAgents(ctx context.Context, runID string) ([]AgentRecord, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Each store gets its own named database so tests never share state.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:dispatch-%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys via PRAGMA (required for modernc.org/sqlite)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// A single connection keeps the PRAGMA in effect and serializes writers
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
