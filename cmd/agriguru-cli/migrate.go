package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shivas758/agriguru/internal/storage"
)

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply pending schema migrations to the configured SQLite or Postgres
database. Use --status to list them without applying.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := storage.Open(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			m := storage.NewMigrationManager(db)
			status, err := m.CheckMigrations(ctx)
			if err != nil {
				return err
			}

			logger.Info().
				Str("target", cfg.Database.Driver).
				Int("applied", len(status.Applied)).
				Int("pending", len(status.Pending)).
				Msg("Checked migrations")

			if !statusOnly && !status.UpToDate {
				if err := m.RunMigrations(ctx, status); err != nil {
					return err
				}
			}

			if outputJSON {
				return printJSON(cmd, map[string]interface{}{
					"driver":   cfg.Database.Driver,
					"applied":  status.Applied,
					"pending":  status.Pending,
					"upToDate": status.UpToDate,
					"ran":      !statusOnly && !status.UpToDate,
				})
			}

			ui := newUI(cmd)
			switch {
			case status.UpToDate:
				ui.Success("Schema is up to date (%d migrations)", status.Total)
			case statusOnly:
				ui.Warning("%d pending: %s", len(status.Pending), strings.Join(status.Pending, ", "))
			default:
				ui.Success("Applied %s on %s", strings.Join(status.Pending, ", "), cfg.Database.Driver)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "only report pending migrations")
	return cmd
}
