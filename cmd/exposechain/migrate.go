package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/exposechain/exposechain/internal/store"
)

var (
	migrationsDir string
	migrateDown   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `migrate applies the NNN_name.up.sql files in the migrations directory
that have not been applied yet, tracking the schema version in the
schema_migrations table. --down rolls every migration back.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory holding the migration files")
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back every applied migration")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Database.URL == "" {
		return errors.New("database.url is not set (EXPOSE_DATABASE_URL)")
	}
	dir := os.DirFS(migrationsDir)

	if migrateDown {
		if err := store.MigrateDown(cfg.Database.URL, dir, logger); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "all migrations rolled back")
		return nil
	}

	version, changed, err := store.Migrate(cfg.Database.URL, dir, logger)
	if err != nil {
		return err
	}
	if changed {
		fmt.Fprintf(cmd.OutOrStdout(), "migrated to version %d\n", version)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "nothing to migrate, already at version %d\n", version)
	}
	return nil
}
