package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/dispatch/internal/backend"
	"github.com/aristath/dispatch/internal/dispatch"
	"github.com/aristath/dispatch/internal/events"
	"github.com/aristath/dispatch/internal/logging"
	"github.com/aristath/dispatch/internal/manifest"
	"github.com/aristath/dispatch/internal/metrics"
	"github.com/aristath/dispatch/internal/persistence"
	"github.com/aristath/dispatch/internal/scheduler"
	"github.com/aristath/dispatch/internal/tui"
)

// tuiShutdownTimeout bounds how long the TUI gets to exit after a signal.
const tuiShutdownTimeout = 10 * time.Second

type runOptions struct {
	policy      string
	tui         bool
	dbPath      string
	resume      string
	retryFailed bool
	metricsFile string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <manifest.yaml>",
		Short: "Dispatch the tasks of a manifest",
		Long: `Registers the agents and tasks of a manifest with the selected policy and
runs every assignment on the agent's backend until nothing is left.

With --db the run is journaled to SQLite; --resume continues a journaled run,
skipping tasks that already completed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.policy, "policy", "", "Scheduling policy (dag, lru, round-robin); overrides config and manifest")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Show the live terminal view")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite journal path (overrides db_path in config)")
	cmd.Flags().StringVar(&opts.resume, "resume", "", "Resume the journaled run with this ID")
	cmd.Flags().BoolVar(&opts.retryFailed, "retry-failed", false, "With --resume, also rerun tasks that failed")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the run ends")

	return cmd
}

func runManifest(ctx context.Context, out io.Writer, path string, opts runOptions) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	m.Apply(cfg)
	if opts.policy != "" {
		cfg.Policy = opts.policy
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.resume != "" && cfg.DBPath == "" {
		return errors.New("--resume needs a journal (--db or db_path)")
	}

	sched, err := scheduler.New(cfg.Policy, scheduler.WithCycleDetection(cfg.CycleDetectionEnabled()))
	if err != nil {
		return err
	}

	pm := backend.NewProcessManager()
	stopKill := context.AfterFunc(ctx, func() {
		logger.Info("shutdown signal received, killing subprocesses", "tasks", pm.Tasks())
		if err := pm.KillAll(); err != nil {
			logger.Error("failed to kill subprocesses", "error", err)
		}
	})
	defer stopKill()

	bus := events.NewEventBus()
	defer bus.Close()
	collector := metrics.NewCollector()

	var (
		store persistence.Store
		runID string
	)
	if cfg.DBPath != "" {
		s, err := persistence.NewSQLiteStore(ctx, cfg.DBPath)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s

		if opts.resume != "" {
			run, err := store.GetRun(ctx, opts.resume)
			if err != nil {
				return err
			}
			runID = run.ID
		} else {
			run, err := store.CreateRun(ctx, sched.Name())
			if err != nil {
				return err
			}
			runID = run.ID
		}
		logger.Info("journal open", "db", cfg.DBPath, "run", runID)
	}

	runLogger := logger
	if opts.tui {
		// The alt screen owns the terminal
		runLogger = logging.Discard()
	}
	runner := dispatch.NewRunner(dispatch.RunnerConfig{
		Retry:    dispatch.RetryFromConfig(cfg.Retry),
		Breakers: dispatch.NewCircuitBreakerRegistry(runLogger),
		Bus:      bus,
		Store:    store,
		RunID:    runID,
		Metrics:  collector,
		Logger:   runLogger,
	}, sched)

	backends := make(map[string]backend.Backend)
	defer func() {
		for _, b := range backends {
			b.Close()
		}
	}()
	for _, id := range cfg.AgentIDs() {
		name := cfg.BackendFor(id)
		b, ok := backends[name]
		if !ok {
			bc := cfg.Backends[name]
			b, err = backend.New(backend.Config{Type: bc.Type, Command: bc.Command, Args: bc.Args}, pm)
			if err != nil {
				return fmt.Errorf("backend %q: %w", name, err)
			}
			backends[name] = b
		}
		agent, err := scheduler.NewAgent(id, cfg.Agents[id].Capacity)
		if err != nil {
			return err
		}
		if err := runner.AddAgent(ctx, agent, b); err != nil {
			return err
		}
	}

	// Subscribe before Submit so the view sees every registration
	var view tui.Model
	if opts.tui {
		view = tui.New(bus, sched.Name())
	}

	tasks := m.BuildTasks()
	if opts.resume != "" {
		var completed []string
		tasks, completed, err = resumeTasks(ctx, store, runID, opts.retryFailed)
		if err != nil {
			return err
		}
		runner.MarkCompleted(completed...)
		logger.Info("resuming run", "run", runID, "remaining", len(tasks), "completed", len(completed))
	}
	if err := runner.Submit(ctx, tasks...); err != nil {
		return err
	}

	var results []dispatch.TaskResult
	if opts.tui {
		results, err = runWithTUI(ctx, runner, view)
	} else {
		results, err = runner.Run(ctx)
	}

	if store != nil {
		// The run context may already be cancelled
		if ferr := store.FinishRun(context.WithoutCancel(ctx), runID, runStatus(err)); ferr != nil {
			logger.Warn("failed to finish run", "run", runID, "error", ferr)
		}
	}
	if opts.metricsFile != "" {
		if werr := collector.WriteTextfile(opts.metricsFile); werr != nil {
			logger.Warn("failed to write metrics", "path", opts.metricsFile, "error", werr)
		}
	}

	printResults(out, runID, results, collector.Summary())
	if err != nil {
		return err
	}
	if failed := countFailed(results); failed > 0 {
		return fmt.Errorf("%d task(s) failed", failed)
	}
	return nil
}

// resumeTasks rebuilds the unfinished tasks of a journaled run, in their
// original registration order, and returns the IDs that already completed.
func resumeTasks(ctx context.Context, store persistence.Store, runID string, retryFailed bool) ([]*scheduler.Task, []string, error) {
	pending, err := store.PendingTasks(ctx, runID, retryFailed)
	if err != nil {
		return nil, nil, err
	}
	all, err := store.ListTasks(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	tasks := make([]*scheduler.Task, 0, len(pending))
	for _, rec := range pending {
		tasks = append(tasks, rec.Task())
	}
	var completed []string
	for _, rec := range all {
		if rec.Status == persistence.TaskCompleted {
			completed = append(completed, rec.ID)
		}
	}
	return tasks, completed, nil
}

// runWithTUI runs the dispatch loop while view renders bus events.
// Quitting the TUI cancels the run.
func runWithTUI(ctx context.Context, runner *dispatch.Runner, view tui.Model) ([]dispatch.TaskResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		results []dispatch.TaskResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := runner.Run(runCtx)
		done <- outcome{results, err}
	}()

	p := tea.NewProgram(view, tea.WithAltScreen())
	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		// User quit; stop dispatching whatever is left
		cancel()
		res := <-done
		if err != nil {
			return res.results, fmt.Errorf("tui: %w", err)
		}
		return res.results, res.err
	case <-ctx.Done():
		p.Quit()
		shutdownCtx, stop := context.WithTimeout(context.Background(), tuiShutdownTimeout)
		defer stop()
		select {
		case <-errChan:
		case <-shutdownCtx.Done():
			logger.Warn("TUI shutdown timeout exceeded")
		}
		res := <-done
		return res.results, res.err
	}
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return persistence.RunFinished
	case errors.Is(err, dispatch.ErrStalled):
		return persistence.RunStalled
	default:
		return persistence.RunAborted
	}
}

func countFailed(results []dispatch.TaskResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}

func printResults(out io.Writer, runID string, results []dispatch.TaskResult, summary metrics.Summary) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tAGENT\tSTATUS\tWAIT\tDURATION\tOUTPUT")
	for _, r := range results {
		status := "ok"
		detail := firstLine(r.Output)
		if !r.Success {
			status = "failed"
			if r.Error != nil {
				detail = firstLine(r.Error.Error())
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.TaskID, r.AgentID, status,
			r.Wait.Round(time.Millisecond), r.Duration.Round(time.Millisecond), detail)
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d assigned, %d completed, average wait %s, throughput %.2f tasks/s\n",
		summary.Assigned, summary.Completed, summary.AverageWait.Round(time.Millisecond), summary.Throughput)
	if runID != "" {
		fmt.Fprintf(out, "run %s\n", runID)
	}
}

// firstLine truncates s to its first line and at most 60 runes.
func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if utf8.RuneCountInString(s) > 60 {
		s = string([]rune(s)[:57]) + "..."
	}
	return s
}
