package store

import (
	"fmt"
	"log/slog"
	"strings"
)

// Migrations are additive only: new versions append columns, never drop.
// Partial prior runs are tolerated by treating "column already exists" as
// success before the version counter was bumped.
var migrations = []string{
	// v1: base tables.
	`CREATE TABLE IF NOT EXISTS clients (
	   id        TEXT PRIMARY KEY,
	   last_seen INTEGER NOT NULL
	 );
	 CREATE TABLE IF NOT EXISTS messages (
	   id          TEXT PRIMARY KEY,
	   from_client TEXT NOT NULL,
	   to_client   TEXT,
	   type        TEXT NOT NULL,
	   timestamp   INTEGER NOT NULL,
	   body        TEXT NOT NULL,
	   status      TEXT NOT NULL
	 );`,

	// v2: delivery ordering.
	`ALTER TABLE messages ADD COLUMN priority INTEGER NOT NULL DEFAULT 1;`,

	// v3: delivery receipts.
	`ALTER TABLE messages ADD COLUMN delivered_timestamp INTEGER;`,
}

// migrate reads the schema-version counter and applies outstanding steps in
// sequence, bumping the counter inside the same transaction as each step.
func (q *Queue) migrate() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var version int
	if err := q.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for next := version; next < len(migrations); next++ {
		tx, err := q.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[next]); err != nil && !columnExists(err) {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", next+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, next+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("bump schema version to %d: %w", next+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", next+1, err)
		}
		q.logger.Info("applied schema migration", slog.Int("version", next+1))
	}
	return nil
}

// columnExists recognizes the SQLite error for re-adding a column that a
// partial prior run already created.
func columnExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}
