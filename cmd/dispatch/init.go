package main

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/aristath/dispatch/internal/config"
	"github.com/aristath/dispatch/internal/tui"
)

func newInitCmd() *cobra.Command {
	var global, force, defaults bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Long: `init writes a configuration file. On a terminal it opens a form for the
policy, agents and backends; otherwise, or with --defaults, it writes the
built-in defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			globalPath, projectPath, err := config.DefaultPaths()
			if err != nil {
				return err
			}
			targets := []tui.SaveTarget{
				{Label: "Project", Path: projectPath},
				{Label: "Global", Path: globalPath},
			}
			if global {
				targets[0], targets[1] = targets[1], targets[0]
			}
			if flagConfig != "" {
				targets = []tui.SaveTarget{{Label: "Config", Path: flagConfig}}
			}

			checkTarget := func(path string) error {
				if _, err := os.Stat(path); err == nil && !force {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				return nil
			}

			out := cmd.OutOrStdout()
			if defaults || !isTerminal(cmd.InOrStdin()) {
				path := targets[0].Path
				if err := checkTarget(path); err != nil {
					return err
				}
				if err := config.Save(config.DefaultConfig(), path); err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %s\n", path)
				return nil
			}

			form := tui.NewSettingsModel(config.DefaultConfig(), targets, checkTarget)
			final, err := tea.NewProgram(form,
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(out),
			).Run()
			if err != nil {
				return fmt.Errorf("settings form: %w", err)
			}
			result := final.(tui.SettingsModel)
			switch {
			case result.Err() != nil:
				return result.Err()
			case result.Aborted():
				fmt.Fprintln(out, "init cancelled")
			default:
				fmt.Fprintf(out, "wrote %s\n", result.SavedPath())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Write the global config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write the built-in defaults without prompting")
	return cmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
