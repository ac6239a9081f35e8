package main

import (
	"github.com/spf13/cobra"

	pg "guia-paracuru/internal/infra/db/postgres"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations",
	}
	migrateRollback bool
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "roll back the latest migration")
}

func runMigration(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := pg.Migrate(cmd.Context(), cfg.Database.URL, migrateRollback); err != nil {
		return err
	}
	logger.Info().Bool("rollback", migrateRollback).Msg("migrations applied")
	return nil
}
