package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/FolioPipe/internal/config"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the session and service record tables",
		Long: `Applies the session store schema (SQLite and PostgreSQL backends) and
migrates the technical_services table of the records database.

Safe to run multiple times (idempotent).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.OutOrStdout(), opts.cfg)
		},
	}
}

func runMigrate(out io.Writer, cfg *config.Config) error {
	switch cfg.Session.Backend {
	case config.BackendSQLite, config.BackendPostgres:
		sessions, err := openSessionStore(cfg)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		sessions.Close()
		fmt.Fprintf(out, "Session store (%s) migrated.\n", cfg.Session.Backend)
	default:
		fmt.Fprintf(out, "Session store (%s) needs no migration.\n", cfg.Session.Backend)
	}

	if cfg.RecordsDSN == config.RecordsMemory {
		fmt.Fprintln(out, "Service records are in memory; nothing to migrate.")
		return nil
	}
	_, closeRecords, err := openRecords(cfg)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer closeRecords()
	fmt.Fprintln(out, "Service records migrated.")
	return nil
}
