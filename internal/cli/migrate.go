// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/store/postgres/migrations"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database schema migrations",
	Long: `Apply or inspect the database schema migrations. The serve
command applies pending migrations automatically on startup; migrate
exists for running them separately, for example during deployments.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(func(db *sql.DB) error {
			return goose.UpContext(cmd.Context(), db, ".")
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrationDB(func(db *sql.DB) error {
			return goose.StatusContext(cmd.Context(), db, ".")
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func withMigrationDB(fn func(*sql.DB) error) error {
	cfg, err := config.Load(configFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("no database DSN configured")
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return fn(db)
}
