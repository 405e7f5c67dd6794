package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"autodrive/internal/config"
	"autodrive/internal/logging"
)

// rootOptions holds state shared by all subcommands.
type rootOptions struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("autodrive exited")
		os.Exit(1)
	}
}

// newRootCommand creates the autodrive command. Without a subcommand it
// serves the HTTP API.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "autodrive",
		Short: "Autonomous ride-hailing trip orchestrator",
		Long: `autodrive matches riders to autonomous vehicles, prices trips, and
settles fares through an on-ledger escrow.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.cfg = config.Load()
			opts.logger = logging.New(opts.cfg.Log)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newEstimateCommand(opts))

	return cmd
}
