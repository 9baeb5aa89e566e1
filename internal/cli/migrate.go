package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"auction-engine/internal/repository"
	"auction-engine/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db := getApp().Config.Database
		if db.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}

		pool, err := repository.NewPool(cmd.Context(), repository.PoolOptions{
			DSN:             db.DSN,
			MaxConns:        db.MaxConns,
			ConnMaxLifetime: db.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := migrations.Apply(cmd.Context(), pool); err != nil {
			return err
		}
		names, err := migrations.Names()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", len(names))
		return nil
	},
}
