package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ghostline-core/internal/config/schema"
	coreerrors "ghostline-core/internal/core/errors"
	"ghostline-core/internal/core/storage/postgres"
)

func newMigrateCmd(opts *options) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		Long: `Apply the accounts and subscriptions schema to the configured PostgreSQL
database. Statements are idempotent and safe to run on every deploy.

Example:
  ghostline migrate -c /etc/ghostline/config.yaml
  ghostline migrate --print > schema.sql`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printOnly {
				fmt.Fprintln(cmd.OutOrStdout(), postgres.Schema())
				return nil
			}

			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Type != schema.DatabasePostgres {
				return coreerrors.Newf(coreerrors.CodeConfigError,
					"migrate requires database.type=%s, got %q", schema.DatabasePostgres, cfg.Database.Type)
			}

			pg, err := postgres.New(cmd.Context(), postgres.ConfigFromSchema(cfg.Database), logger)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			NewOutput(cmd.OutOrStdout()).Success("schema is up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the schema SQL without connecting")
	return cmd
}
