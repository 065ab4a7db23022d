package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrationFS embeds one migration directory per dialect.
//
//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// ErrNoChange is returned by MigrateDown when there is nothing to roll back.
var ErrNoChange = migrate.ErrNoChange

// Migrate applies all pending migrations. Every statement is idempotent
// (CREATE ... IF NOT EXISTS), so concurrent instances starting together
// converge on the same schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.runMigrations(ctx, "up")
}

// MigrateDown rolls back every migration.
func (s *Store) MigrateDown(ctx context.Context) error {
	return s.runMigrations(ctx, "down")
}

func (s *Store) runMigrations(ctx context.Context, direction string) error {
	// golang-migrate closes the handle it is given, so it gets its own.
	db, err := sql.Open(s.dialect.driverName(), s.dsn)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("pinging migration connection: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations/"+s.dialect.name())
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate source: %w", err)
	}
	driver, err := s.dialect.migrationDriver(db)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, s.dialect.name(), driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	default:
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		if direction == "down" {
			return ErrNoChange
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("running migrations %s: %w", direction, err)
	}

	version, dirty, _ := m.Version()
	slog.Info("database migrated", "driver", s.dialect.name(), "direction", direction, "version", version, "dirty", dirty)
	return nil
}
