// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pronoia/pronoia/internal/config"
)

// Migration actions.
const (
	migrateUp      = "up"
	migrateDown    = "down"
	migrateVersion = "version"
)

// NewMigrateCmd creates the migrate subcommand. Without a subcommand it applies
// all pending migrations.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending database migrations against the PostgreSQL database.`,
		RunE:  migrateRunE(migrateUp),
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  migrateRunE(migrateUp),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (drops the users table)",
		RunE:  migrateRunE(migrateDown),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied and pending migration versions",
		RunE:  migrateRunE(migrateVersion),
	})

	return cmd
}

func migrateRunE(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(config.Sources{File: configFile, Flags: cmd.Flags()})
		if err != nil {
			return err
		}
		return runMigrateWithDeps(cmd, cfg, action, nil)
	}
}

// runMigrateWithDeps performs a migration action with injectable dependencies.
func runMigrateWithDeps(cmd *cobra.Command, cfg *config.Config, action string, deps *MigrateDeps) error {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = defaultMigratorFactory
	}

	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database.url is required (set --database-url or %sDATABASE_URL)", config.EnvPrefix)
	}

	migrator, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Debug("error closing migrator", "error", closeErr)
		}
	}()

	switch action {
	case migrateUp:
		cmd.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
		cmd.Println("Migrations completed successfully")
	case migrateDown:
		cmd.Println("Rolling back migrations...")
		if err := migrator.Down(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
		}
		cmd.Println("Rollback completed successfully")
	case migrateVersion:
		current, dirty, err := migrator.Version()
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
		}
		pending, err := migrator.Pending()
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "list pending").Wrap(err)
		}
		cmd.Println(fmt.Sprintf("version: %d", current))
		if dirty {
			cmd.Println("state: dirty (a previous migration failed part-way)")
		}
		if len(pending) == 0 {
			cmd.Println("pending: none")
		} else {
			cmd.Println(fmt.Sprintf("pending: %v", pending))
		}
	default:
		return oops.Code("MIGRATION_FAILED").With("action", action).Errorf("unknown migration action %q", action)
	}
	return nil
}
