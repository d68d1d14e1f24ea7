// ABOUTME: Ordered, ledger-tracked schema migrations with row-count loss guards
// ABOUTME: Each step runs once in its own transaction; guarded steps abort on unexpected row loss

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// ledgerTable records applied migration step names. It is excluded from the
// safeguard table counts.
const ledgerTable = "schema_migrations"

// Migration is one named schema step. Exactly one of SQL or Run must be set.
// Steps must be idempotent-safe against a partially-migrated store (check
// column existence before renaming, CREATE TABLE IF NOT EXISTS, and so on)
// because a step that failed after partial work will be re-attempted.
type Migration struct {
	Name string
	SQL  string
	Run  func(tx *sql.Tx) error

	// Guard, when set, wraps the step in a row-count check on one table.
	Guard *LossGuard
}

// LossGuard declares the tolerated row loss for a destructive step. The
// default tolerance is zero: any lost row fails the migration.
type LossGuard struct {
	Table     string
	AllowLoss int64
}

// DataLossError is returned when a guarded migration step lost more rows
// than its declared tolerance. It is fatal: the step is rolled back and its
// ledger entry is not written, so a retry after fixing the step re-attempts
// it.
type DataLossError struct {
	Step      string
	Table     string
	Before    int64
	After     int64
	AllowLoss int64
}

func (e *DataLossError) Error() string {
	return fmt.Sprintf("migration %q lost %d of %d rows in %s (tolerance %d)",
		e.Step, e.Before-e.After, e.Before, e.Table, e.AllowLoss)
}

// Migrator applies an ordered list of migrations to a database, tracking
// applied steps in the schema_migrations ledger.
type Migrator struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMigrator creates a Migrator. A nil logger falls back to slog.Default.
func NewMigrator(db *sql.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, logger: logger.With("component", "migrate")}
}

// Apply runs every step not yet recorded in the ledger, in order, and
// returns the names of the steps it applied. The ledger row is written in
// the same transaction as the step itself, so a failed step stays
// unapplied.
func (m *Migrator) Apply(steps []Migration) ([]string, error) {
	if _, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`); err != nil {
		return nil, fmt.Errorf("creating migration ledger: %w", err)
	}

	var applied []string
	for _, step := range steps {
		done, err := m.isApplied(step.Name)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}
		if err := m.applyStep(step); err != nil {
			return applied, err
		}
		applied = append(applied, step.Name)
	}
	return applied, nil
}

// Pending returns the names of steps not yet recorded in the ledger.
func (m *Migrator) Pending(steps []Migration) ([]string, error) {
	var pending []string
	for _, step := range steps {
		done, err := m.isApplied(step.Name)
		if err != nil {
			return nil, err
		}
		if !done {
			pending = append(pending, step.Name)
		}
	}
	return pending, nil
}

func (m *Migrator) isApplied(name string) (bool, error) {
	var one int
	err := m.db.QueryRow(`SELECT 1 FROM schema_migrations WHERE name = ?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		// A missing ledger table means nothing has been applied.
		return false, fmt.Errorf("checking migration ledger for %q: %w", name, err)
	}
	return true, nil
}

func (m *Migrator) applyStep(step Migration) (err error) {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration %q: %w", step.Name, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var before int64
	if step.Guard != nil {
		before, err = countRowsTx(tx, step.Guard.Table)
		if err != nil {
			return fmt.Errorf("snapshotting %s before %q: %w", step.Guard.Table, step.Name, err)
		}
	}

	switch {
	case step.Run != nil:
		if err = step.Run(tx); err != nil {
			return fmt.Errorf("migration %q: %w", step.Name, err)
		}
	case step.SQL != "":
		if _, err = tx.Exec(step.SQL); err != nil {
			return fmt.Errorf("migration %q: %w", step.Name, err)
		}
	default:
		err = fmt.Errorf("migration %q has neither SQL nor Run", step.Name)
		return err
	}

	if step.Guard != nil {
		var after int64
		after, err = countRowsTx(tx, step.Guard.Table)
		if err != nil {
			return fmt.Errorf("snapshotting %s after %q: %w", step.Guard.Table, step.Name, err)
		}
		if before-after > step.Guard.AllowLoss {
			err = &DataLossError{
				Step:      step.Name,
				Table:     step.Guard.Table,
				Before:    before,
				After:     after,
				AllowLoss: step.Guard.AllowLoss,
			}
			return err
		}
	}

	if _, err = tx.Exec(`INSERT INTO schema_migrations (name) VALUES (?)`, step.Name); err != nil {
		return fmt.Errorf("recording migration %q: %w", step.Name, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %q: %w", step.Name, err)
	}

	m.logger.Info("applied migration", "step", step.Name)
	return nil
}

func countRowsTx(tx *sql.Tx, table string) (int64, error) {
	var n int64
	// Table names come from our own migration list, not user input.
	err := tx.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// columnExists reports whether a table already has the named column. Used
// by column-add steps to stay idempotent.
func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
