// ABOUTME: Shared test helper and store lifecycle tests
// ABOUTME: Every store test runs against a real temporary SQLite database

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestStore_ReopenIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)

	_, err = store.CreateChannel(ctx, "general", "")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening re-runs the migrator; every step is already in the ledger.
	store, err = NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	defer store.Close()

	ch, err := store.GetChannel(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, "general", ch.Name)
}

func TestStore_SchemaHasAllTables(t *testing.T) {
	store := setupTestStore(t)

	counts, err := store.TableCounts(context.Background())
	require.NoError(t, err)

	for _, table := range []string{"channels", "messages", "bookmarks", "notes", "agents"} {
		_, ok := counts[table]
		assert.True(t, ok, "missing table %s", table)
	}
	_, ok := counts["schema_migrations"]
	assert.False(t, ok, "ledger table must be excluded from counts")
}
