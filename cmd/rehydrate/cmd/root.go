// Package cmd provides the CLI commands for rehydrate.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/TheMonk2121/rehydrate/internal/logging"
	"github.com/TheMonk2121/rehydrate/pkg/version"
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command. The root verb assembles a bundle;
// everything else is a subcommand.
func NewRootCmd() *cobra.Command {
	var flags rehydrateFlags

	cmd := &cobra.Command{
		Use:   "rehydrate [query]",
		Short: "Role-aware context bundles from hybrid retrieval",
		Long: `Rehydrate assembles Context Bundles for AI agents: pinned anchor
context for a role plus evidence retrieved by hybrid (lexical + semantic)
search over your notes, packed into a token budget.

Run 'rehydrate index' first to build the indexes, then:

  rehydrate --role planner "what are the current priorities"`,
		Version: version.Version,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runRehydrate(cmd, args, flags)
		},
	}

	cmd.SetVersionTemplate("rehydrate version {{.Version}}\n")

	addRehydrateFlags(cmd, &flags)

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to the rehydrate log directory")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newAnchorsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging enables debug logging if the flag is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}

	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))

	return nil
}

// stopLogging flushes and closes the debug log.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
