package repository

import (
	"database/sql"
	"embed"
	"fmt"

	"pigeon-auction/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationDir = "migrations"

// Migrate runs all pending migrations embedded in the binary
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: set migration dialect: %w", err)
	}

	utils.Info("running migrations", map[string]any{"dir": migrationDir})
	if err := goose.Up(db, migrationDir); err != nil {
		return fmt.Errorf("postgres: run migrations: %w", err)
	}
	return nil
}
