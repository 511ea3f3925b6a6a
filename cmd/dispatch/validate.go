package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/dispatch/internal/manifest"
	"github.com/aristath/dispatch/internal/scheduler"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest.yaml>",
		Short: "Check a manifest and print its execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			dag := scheduler.NewDAGScheduler(scheduler.WithCycleDetection(true))
			declared := make(map[string]bool, len(m.Tasks))
			for _, task := range m.BuildTasks() {
				if err := dag.RegisterTask(task); err != nil {
					return err
				}
				declared[task.ID] = true
			}
			order, err := dag.Order()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			policy := m.Policy
			if policy == "" {
				policy = cfg.Policy
			}
			fmt.Fprintf(out, "%d tasks, %d agents, policy %s\n", len(m.Tasks), len(m.Agents), policy)
			for i, id := range order {
				fmt.Fprintf(out, "%3d  %s\n", i+1, id)
			}

			// Undeclared dependencies are legal but starve their dependents
			for _, task := range m.BuildTasks() {
				for _, dep := range task.Dependencies {
					if !declared[dep] {
						logger.Warn("dependency is not declared in the manifest", "task", task.ID, "depends_on", dep)
					}
				}
			}
			return nil
		},
	}
}
