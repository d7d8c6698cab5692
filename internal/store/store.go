package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a requested propagation does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a propagation ID is already stored with
	// a different digest, e.g. a deterministic run of an edited scenario.
	ErrConflict = errors.New("store: propagation stored with different content")
)

// pragmas are applied to every connection in order. verifyPragma reads the
// same table back in tests.
var pragmas = []struct {
	name  string
	value string
	want  string // as reported by PRAGMA <name>
}{
	{"journal_mode", "WAL", "wal"},
	{"synchronous", "NORMAL", "1"},
	{"busy_timeout", "5000", "5000"},
	{"foreign_keys", "ON", "1"},
}

// migrations[i] upgrades a database from user_version i to i+1. Fresh
// databases get every table from schema.sql and then run all migrations,
// so each one must be idempotent.
var migrations = []func(tx *sql.Tx) error{
	// v1: per-node trace queries.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_steps_node ON steps(node)`)
		return err
	},
	// v2: propagation digests for conflict detection.
	func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM pragma_table_info('propagations') WHERE name = 'digest'`,
		).Scan(&n); err != nil || n > 0 {
			return err
		}
		_, err := tx.Exec(`ALTER TABLE propagations ADD COLUMN digest TEXT NOT NULL DEFAULT ''`)
		return err
	},
}

// Store is a SQLite log of propagations and their steps.
//
// A single connection is kept open: SQLite allows one writer at a time and
// WAL mode lets readers in other processes see committed traces.
type Store struct {
	db *sql.DB
}

// Open creates or opens the trace database at path, applying pragmas,
// schema and pending migrations. Opening the same path repeatedly is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initialize(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initialize(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("failed to set pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LastSeq returns the highest step seq recorded, or 0 for an empty store.
// A trace.Clock created with NewClockAt(LastSeq) continues the log without
// reusing seq values.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM steps`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// Counts returns the number of stored propagations and steps.
func (s *Store) Counts(ctx context.Context) (propagations, steps int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM propagations), (SELECT COUNT(*) FROM steps)
	`)
	if err := row.Scan(&propagations, &steps); err != nil {
		return 0, 0, fmt.Errorf("count: %w", err)
	}
	return propagations, steps, nil
}

func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("pragma %s = %q, want %q", name, value, expected)
	}
	return nil
}
