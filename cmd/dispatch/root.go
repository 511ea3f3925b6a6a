package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aristath/dispatch/internal/config"
	"github.com/aristath/dispatch/internal/logging"
	"github.com/aristath/dispatch/internal/scheduler"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    *config.DispatchConfig
	logger *slog.Logger
)

// newRootCmd creates the root cobra command for the dispatch CLI.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dispatch",
		Short: "Dispatch tasks to agents under a scheduling policy",
		Long: `dispatch assigns the tasks of a manifest to a roster of agents using one
of the dag, lru or round-robin policies and runs them on the agents' backends.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			cfg = loaded

			level := cfg.Log.Level
			if cmd.Flags().Changed("log-level") {
				level = flagLogLevel
			}
			if flagDebug {
				level = "debug"
			}
			format := cfg.Log.Format
			if cmd.Flags().Changed("log-format") {
				format = flagLogFormat
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(level), format, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: ~/.dispatch/config.json merged with .dispatch/config.json)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newHistoryCmd(),
		newPoliciesCmd(),
		newInitCmd(),
	)

	return root
}

// loadConfig loads --config on top of the defaults, or the conventional
// global and project files when the flag is empty.
func loadConfig() (*config.DispatchConfig, error) {
	if flagConfig != "" {
		c, err := config.Load("", flagConfig)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return c, nil
	}
	c, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}

func newPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List scheduling policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range scheduler.Policies() {
				marker := " "
				if p == cfg.Policy {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, p)
			}
			return nil
		},
	}
}
