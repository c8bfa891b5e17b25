package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool(cmd.Context(), "db")
		if err != nil {
			return err
		}
		defer pool.Close()

		names, err := db.MigrationNames()
		if err != nil {
			return err
		}
		zap.L().Info("migrations applied", zap.Strings("migrations", names))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
