// Package rdpso implements the rdpso command line: headless runs, config
// rendering, replay inspection and run history.
package rdpso

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"rdpso/simulator/internal/logging"
)

// NewRootCmd builds a fresh command tree so tests can execute it in isolation.
func NewRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "rdpso",
		Short:         "Drive and inspect particle swarm simulations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewWithWriter(cmd.ErrOrStderr(), logLevel)
			if err != nil {
				return fmt.Errorf("configure logger: %w", err)
			}
			cmd.SetContext(logging.ContextWithLogger(cmd.Context(), logger))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(), newConfigCmd(), newReplayCmd(), newRunsCmd())
	return root
}

// Execute runs the command tree against args and reports the error, if any, to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return err
	}
	return nil
}

func loggerFrom(cmd *cobra.Command) *logging.Logger {
	return logging.LoggerFromContext(cmd.Context())
}
