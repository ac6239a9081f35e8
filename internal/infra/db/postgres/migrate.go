package postgres

import (
	"context"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"

// Migrate applies (or, with down, rolls back one step of) the embedded schema.
func Migrate(ctx context.Context, dsn string, down bool) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("goose: open db: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(migrationsTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	cmd := "up"
	if down {
		cmd = "down"
	}
	if err := goose.RunContext(ctx, cmd, db, "migrations"); err != nil {
		return fmt.Errorf("goose %s: %w", cmd, err)
	}
	return nil
}
