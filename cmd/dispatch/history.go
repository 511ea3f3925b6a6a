package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/dispatch/internal/persistence"
)

func newHistoryCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List journaled runs, or the tasks of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = cfg.DBPath
			}
			if dbPath == "" {
				return errors.New("no journal configured (--db or db_path)")
			}

			store, err := persistence.NewSQLiteStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			defer w.Flush()

			if len(args) == 0 {
				runs, err := store.ListRuns(cmd.Context())
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs found.")
					return nil
				}
				fmt.Fprintln(w, "ID\tPOLICY\tSTATUS\tSTARTED\tFINISHED")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Policy, r.Status, formatTime(r.StartedAt), formatTime(r.FinishedAt))
				}
				return nil
			}

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tasks, err := store.ListTasks(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			agents, err := store.ListAgents(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "run %s\tpolicy %s\tstatus %s\n\n", run.ID, run.Policy, run.Status)
			fmt.Fprintln(w, "TASK\tSTATUS\tAGENT\tDEPENDS ON\tERROR")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, dash(t.AgentID), dash(strings.Join(t.Dependencies, ",")), firstLine(t.Error))
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "AGENT\tCAPACITY\tBUSY\tLAST USED")
			for _, a := range agents {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", a.ID, a.Capacity, a.Busy, formatTime(a.LastUsed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite journal path (overrides db_path in config)")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
