// Package db provides the persistent store for the yard tracking service:
// vehicles, UWB tags and anchors, the append-only position history and
// tag/anchor ranging measurements, all in a single sqlite database.
package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookup methods when no row matches.
var ErrNotFound = errors.New("db: not found")

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the sqlite database at path and applies
// any pending schema migrations. Use ":memory:" for an ephemeral database.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite + concurrent handler goroutines: serialize on a single
	// connection rather than fighting over file locks.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.applyPragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func (db *DB) applyPragmas() error {
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}
