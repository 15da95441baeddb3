package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version int
	SQL     string
}

var migrations = []Migration{
	{Version: 1, SQL: entriesTable},
	{Version: 2, SQL: valuesTable},
	{Version: 3, SQL: indices},
}

const entriesTable = `
CREATE TABLE IF NOT EXISTS bench_entries (
	id          BIGSERIAL PRIMARY KEY,
	group_name  TEXT NOT NULL,
	commit_id   TEXT NOT NULL,
	entry_date  BIGINT NOT NULL,
	tool        TEXT NOT NULL,
	commit_info JSONB NOT NULL,
	recorded_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (group_name, commit_id, entry_date)
)`

const valuesTable = `
CREATE TABLE IF NOT EXISTS bench_values (
	entry_id BIGINT NOT NULL REFERENCES bench_entries(id) ON DELETE CASCADE,
	ordinal  INTEGER NOT NULL,
	name     TEXT NOT NULL,
	value    DOUBLE PRECISION NOT NULL,
	unit     TEXT NOT NULL,
	bench_range TEXT NOT NULL DEFAULT '',
	extra       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (entry_id, ordinal)
)`

const indices = `
CREATE INDEX IF NOT EXISTS idx_entries_group_date ON bench_entries(group_name, entry_date DESC);
CREATE INDEX IF NOT EXISTS idx_values_name ON bench_values(name);
`

// RunMigrations brings the mirror schema up to date
func RunMigrations(ctx context.Context, db *sql.DB, log logrus.FieldLogger) error {
	log = log.WithField("component", "migration")

	if _, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	for _, m := range migrations {
		applied, err := isMigrationApplied(ctx, db, m.Version)
		if err != nil {
			return err
		}
		if applied {
			log.WithField("version", m.Version).Debug("Migration already applied")
			continue
		}

		log.WithField("version", m.Version).Info("Applying migration")
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func isMigrationApplied(ctx context.Context, db *sql.DB, version int) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", version, err)
	}
	return count > 0, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
