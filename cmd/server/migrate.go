package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"autodrive/internal/app"
	"autodrive/internal/repository/postgres"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the database schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), postgres.Schema())
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, startupTimeout)
			defer cancel()

			db, err := app.NewDatabase(ctx, opts.cfg.Database, nil)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			opts.logger.WithField("database", opts.cfg.Database.DBName).Info("schema applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}
