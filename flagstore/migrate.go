package flagstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// MigrationsTable keeps flag migrations apart from the host application's own.
const MigrationsTable = "cache_flags_migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrate creates schema (if missing) and applies the embedded migrations that
// create the DefaultTable flag table inside it. logger may be nil.
// A store configured with another PostgresConfig.Table needs Postgres.EnsureTable.
func Migrate(ctx context.Context, db *sqlx.DB, schema string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migrate: failed to connect to db: %w", err)
	}
	defer conn.Close()

	if schema != "" {
		_, err = conn.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(schema)))
		if err != nil {
			return fmt.Errorf("migrate: failed to create schema: %w", err)
		}
		_, err = conn.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", pq.QuoteIdentifier(schema)))
		if err != nil {
			return fmt.Errorf("migrate: failed to set search path: %w", err)
		}
	}

	source, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrate: failed to create driver from embedded migrations: %w", err)
	}
	defer source.Close()

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{
		MigrationsTable: MigrationsTable,
		SchemaName:      schema,
	})
	if err != nil {
		return fmt.Errorf("migrate: failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate: failed to create migration instance: %w", err)
	}
	defer m.Close()

	logger.InfoContext(ctx, "applying flag table migrations", "schema", schema)
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate: failed to migrate: %w", err)
		}
		logger.InfoContext(ctx, "flag table already up to date", "schema", schema)
	}
	return nil
}
