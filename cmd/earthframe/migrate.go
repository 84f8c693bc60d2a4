package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/earthframe/earthframe/pkg/api/store"
	"github.com/earthframe/earthframe/pkg/api/store/migrations"
	"github.com/spf13/cobra"
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
		return withDatabase(cmd, func(ctx context.Context, db *sql.DB, dialect migrations.Dialect) error {
			if err := migrations.Up(ctx, db, dialect); err != nil {
				return err
			}

			return printVersion(ctx, db, dialect)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [N]",
	Short: "Roll back N migrations (all when N is omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 0

		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid step count %q", args[0])
			}

			steps = n
		}

		return withDatabase(cmd, func(ctx context.Context, db *sql.DB, dialect migrations.Dialect) error {
			if err := migrations.Down(ctx, db, dialect, steps); err != nil {
				return err
			}

			return printVersion(ctx, db, dialect)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, printVersion)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

// withDatabase opens the configured database for the duration of fn.
func withDatabase(
	cmd *cobra.Command,
	fn func(ctx context.Context, db *sql.DB, dialect migrations.Dialect) error,
) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	gdb, dialect, err := store.Open(log, &cfg.Database)
	if err != nil {
		return err
	}

	db, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}
	defer func() { _ = db.Close() }()

	return fn(cmd.Context(), db, dialect)
}

func printVersion(ctx context.Context, db *sql.DB, dialect migrations.Dialect) error {
	status, err := migrations.Version(ctx, db, dialect)
	if err != nil {
		return err
	}

	fmt.Printf("version: %d (latest %d)", status.Version, status.Latest)

	if status.Dirty {
		fmt.Print(" dirty")
	}

	fmt.Println()

	return nil
}
