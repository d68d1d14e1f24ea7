// ABOUTME: The ordered migration list that defines the fold-relay schema
// ABOUTME: Later steps evolve earlier ones; column adds are idempotent via pragma checks

package store

import (
	"database/sql"
	"fmt"
)

// Migrations returns the full ordered schema history. NewSQLiteStore applies
// it on every open; already-applied steps are skipped via the ledger.
func Migrations() []Migration {
	return []Migration{
		{
			Name: "0001_base_schema",
			SQL: `
				CREATE TABLE IF NOT EXISTS channels (
					channel_id  TEXT PRIMARY KEY,
					name        TEXT NOT NULL,
					topic       TEXT,
					created_at  TEXT NOT NULL,
					archived_at TEXT
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_name ON channels(name);

				CREATE TABLE IF NOT EXISTS agents (
					agent_id   TEXT PRIMARY KEY,
					name       TEXT NOT NULL UNIQUE,
					created_at TEXT NOT NULL
				);

				CREATE TABLE IF NOT EXISTS messages (
					message_id      TEXT PRIMARY KEY,
					channel_id      TEXT NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
					sender_agent_id TEXT NOT NULL,
					content         TEXT NOT NULL,
					created_at      TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_messages_channel_order
					ON messages(channel_id, created_at, message_id);
			`,
		},
		{
			Name: "0002_bookmarks",
			SQL: `
				CREATE TABLE IF NOT EXISTS bookmarks (
					agent_id     TEXT NOT NULL,
					channel_id   TEXT NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
					last_seen_id TEXT NOT NULL,
					updated_at   TEXT NOT NULL,
					PRIMARY KEY (agent_id, channel_id)
				);
			`,
		},
		{
			Name: "0003_notes",
			SQL: `
				CREATE TABLE IF NOT EXISTS notes (
					note_id    TEXT PRIMARY KEY,
					channel_id TEXT NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
					agent_id   TEXT NOT NULL,
					content    TEXT NOT NULL,
					created_at TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_notes_channel ON notes(channel_id, created_at);
			`,
		},
		{
			Name: "0004_channel_pins",
			Run:  addColumn("channels", "pinned_at", "TEXT"),
			Guard: &LossGuard{
				Table: "channels",
			},
		},
		{
			Name: "0005_channel_notes_field",
			Run:  addColumn("channels", "notes", "TEXT"),
			Guard: &LossGuard{
				Table: "channels",
			},
		},
	}
}

// addColumn builds an idempotent ALTER TABLE ADD COLUMN step. SQLite has no
// ADD COLUMN IF NOT EXISTS, so the column is checked first.
func addColumn(table, column, typ string) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		exists, err := columnExists(tx, table, column)
		if err != nil {
			return fmt.Errorf("checking %s.%s: %w", table, column, err)
		}
		if exists {
			return nil
		}
		if _, err := tx.Exec(fmt.Sprintf(`ALTER TABLE %q ADD COLUMN %q %s`, table, column, typ)); err != nil {
			return fmt.Errorf("adding %s.%s: %w", table, column, err)
		}
		return nil
	}
}
