// ABOUTME: Row-count safeguards: table-count snapshots, backup verification, snapshot diffing
// ABOUTME: Converts silent data loss during migrations or restores into loud failures

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"
)

// DefaultMaxLossFraction is the snapshot-diff threshold: a table that lost
// more than this fraction of its rows is flagged.
const DefaultMaxLossFraction = 0.80

// ErrEmptyBackup is returned when a backup holds no data and must not be
// trusted as a restore source.
var ErrEmptyBackup = errors.New("backup contains no data")

// TableCounts snapshots the row count of every user table except the
// migration ledger.
func (s *SQLiteStore) TableCounts(ctx context.Context) (map[string]int64, error) {
	return tableCounts(ctx, s.db)
}

func tableCounts(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		  AND name != ?
	`, ledgerTable)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tables: %w", err)
	}

	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		if err := db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// VerifyBackup opens a restored backup file and checks that it actually
// contains data: at least one non-ledger table with at least one row.
// Returns ErrEmptyBackup (wrapped) when the file cannot be trusted.
func VerifyBackup(ctx context.Context, path string) (map[string]int64, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening backup: %w", err)
	}
	defer db.Close()

	counts, err := tableCounts(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("inspecting backup: %w", err)
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("%w: no tables in %s", ErrEmptyBackup, path)
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: all tables empty in %s", ErrEmptyBackup, path)
	}
	return counts, nil
}

// CountDiff flags a table that lost rows between two snapshots.
type CountDiff struct {
	Table  string
	Before int64
	After  int64
}

func (d CountDiff) String() string {
	return fmt.Sprintf("%s: %d -> %d rows", d.Table, d.Before, d.After)
}

// DiffCounts compares two point-in-time table-count snapshots and returns
// every table that was fully emptied or lost more than maxLossFraction of
// its rows. A non-positive fraction uses DefaultMaxLossFraction. Tables
// absent from the later snapshot count as fully emptied.
func DiffCounts(before, after map[string]int64, maxLossFraction float64) []CountDiff {
	if maxLossFraction <= 0 {
		maxLossFraction = DefaultMaxLossFraction
	}

	var diffs []CountDiff
	for table, b := range before {
		if b == 0 {
			continue
		}
		a := after[table]
		lost := float64(b-a) / float64(b)
		if a == 0 || lost > maxLossFraction {
			diffs = append(diffs, CountDiff{Table: table, Before: b, After: a})
		}
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Table < diffs[j].Table })
	return diffs
}
