// Package cli implements the rtsim command tree.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/rtkernel/internal/logging"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the rtsim CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rtsim",
		Short: "rtsim runs real-time kernel scenarios in simulated time",
		Long: "rtsim runs task graphs on a simulated single core kernel with priority " +
			"aging and priority inheriting mutexes, and keeps a history of runs.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newScenariosCmd(),
		newHistoryCmd(),
		newTraceCmd(),
	)

	return root
}
