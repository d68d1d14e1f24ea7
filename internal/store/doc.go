// Package store provides persistent storage for the relay using SQLite.
//
// # Architecture
//
// SQLiteStore implements the Store interface: the channel registry, the
// ordered message log, per-agent bookmark cursors, channel notes, and the
// agent identity table. The store is the single source of truth; there is
// no in-process caching, and every operation round-trips to the database.
//
// # Data Models
//
//   - Channel: named message partition with archive/pin lifecycle
//   - Message: immutable entry, totally ordered by (created_at, message_id)
//   - Bookmark: per (agent, channel) cursor over the message order
//   - Note: append-only channel annotation outside cursor ordering
//   - Agent: stable id for a human-readable identity
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Migrations
//
// Migrations() is the ordered schema history; NewSQLiteStore applies it on
// every open via Migrator, which tracks applied step names in the
// schema_migrations ledger. Steps that rewrite tables declare a LossGuard;
// a guarded step that loses more rows than its tolerance rolls back with a
// DataLossError and stays unapplied.
//
// The safeguard helpers (TableCounts, VerifyBackup, DiffCounts) extend the
// same discipline to backups and point-in-time comparisons.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrChannelExists: channel name already taken
//   - ErrInvalidInput: empty or missing required field
//   - DataLossError: a guarded migration step tripped its row-count check
//
// All methods accept context.Context for cancellation support.
package store
