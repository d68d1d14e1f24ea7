// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, applies pending migrations, and provides shared scan helpers

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/fold-relay/internal/ident"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	ids    *ident.Generator
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite store at the given path and
// brings its schema up to date. Parent directories are created if needed.
// A nil generator gets a fresh one; pass a shared generator so message ids
// and entity ids come from the same monotonic stream.
func NewSQLiteStore(path string, ids *ident.Generator) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if ids == nil {
		ids = ident.New()
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		ids:    ids,
		logger: logger,
	}

	m := NewMigrator(db, logger)
	applied, err := m.Apply(Migrations())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("applied schema migrations", "steps", strings.Join(applied, ","))
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// DB exposes the underlying handle for the safeguard tooling. Everything
// else goes through the Store interface.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// storedTimeLayout pads fractional seconds to a fixed nine digits so the
// TEXT column sorts lexicographically in chronological order. RFC3339Nano
// trims trailing zeros, which would make "...00.5Z" sort after "...00.51Z".
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime renders a timestamp in the canonical stored form.
func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// parseTime is the single conversion boundary for stored timestamps.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// parseNullTime converts an optional stored timestamp.
func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullString returns nil for empty strings, otherwise the string itself.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
