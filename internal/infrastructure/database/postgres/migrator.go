package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // file source driver
)

// ─────────────────────────────────────────────────────────────────────────────
// RunMigrations
// ─────────────────────────────────────────────────────────────────────────────

// RunMigrations applies all pending migrations from migrationsPath (a
// source URL such as "file://migrations") against dbURL.  It is called on
// application startup; an up-to-date schema is not an error.
func RunMigrations(dbURL string, migrationsPath string) error {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// RollbackMigration
// ─────────────────────────────────────────────────────────────────────────────

// RollbackMigration rolls the schema back by the given number of steps.
// Intended for development and test environments.
func RollbackMigration(dbURL string, migrationsPath string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be greater than 0, got %d", steps)
	}

	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("no migrations to roll back")
		}
		return fmt.Errorf("failed to rollback %d step(s): %w", steps, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MigrationStatus
// ─────────────────────────────────────────────────────────────────────────────

// MigrationStatus reports the currently applied migration version and whether
// the schema is dirty after a partially failed migration.  A database with no
// applied migrations reports version 0 and no error.
func MigrationStatus(dbURL string, migrationsPath string) (version uint, dirty bool, err error) {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ResetDatabase
// ─────────────────────────────────────────────────────────────────────────────

// ResetDatabase rolls every migration back and re-applies them from scratch.
// This drops all tables; never point it at a production database.
func ResetDatabase(dbURL string, migrationsPath string) error {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Down(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to roll back all migrations: %w", err)
		}
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to re-apply migrations: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ForceMigrationVersion
// ─────────────────────────────────────────────────────────────────────────────

// ForceMigrationVersion sets the recorded schema version without running any
// migrations.  Use only to recover from a dirty state left by a failed
// migration; forcing the wrong version leaves the schema inconsistent.
func ForceMigrationVersion(dbURL string, migrationsPath string, version int) error {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}
