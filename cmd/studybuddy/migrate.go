package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/study-buddy/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator) error {
			n, err := m.Up(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator) error {
			rolledBack, err := m.Down(ctx)
			if err != nil {
				return err
			}
			if rolledBack == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %03d_%s\n", rolledBack.Version, rolledBack.Name)
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator) error {
			status, err := m.Status(ctx)
			if err != nil {
				return err
			}
			printMigrations(cmd.OutOrStdout(), status)
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func withMigrator(ctx context.Context, fn func(context.Context, *postgres.Migrator) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := connectDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := fn(ctx, postgres.NewMigrator(db)); err != nil {
		log.Error("migration failed", logger.Err(err))
		return err
	}
	return nil
}

func printMigrations(out io.Writer, migrations []postgres.Migration) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, m := range migrations {
		state, at := "pending", "-"
		if m.IsApplied {
			state = "applied"
			if m.AppliedAt != nil {
				at = m.AppliedAt.UTC().Format(time.RFC3339)
			}
		}
		fmt.Fprintf(w, "%03d\t%s\t%s\t%s\n", m.Version, m.Name, state, at)
	}
	_ = w.Flush()
}
