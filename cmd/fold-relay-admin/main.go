// ABOUTME: Operator CLI for fold-relay: migrations, row-count safeguards, backup checks
// ABOUTME: migrate/counts/verify-backup/diff-counts against the relay database

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/fold-relay/internal/config"
	"github.com/2389/fold-relay/internal/logging"
	"github.com/2389/fold-relay/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "migrate":
		err = cmdMigrate(ctx)
	case "counts":
		err = cmdCounts(ctx, args)
	case "verify-backup":
		err = cmdVerifyBackup(ctx, args)
	case "diff-counts":
		err = cmdDiffCounts(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: fold-relay-admin <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate                      Apply pending schema migrations")
	fmt.Println("  counts [--json]              Row counts for every table")
	fmt.Println("  verify-backup <path>         Check that a restored backup contains data")
	fmt.Println("  diff-counts <before> <after> Compare two counts --json snapshots")
	fmt.Println()
	fmt.Println("Config comes from FOLD_RELAY_CONFIG (YAML or TOML).")
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("FOLD_RELAY_CONFIG"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func openStore() (*store.SQLiteStore, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	st, err := store.NewSQLiteStore(cfg.Database.Path, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return st, cfg, nil
}

// cmdMigrate opens the store, which applies pending steps, then reports
// what remains. A DataLossError from a guarded step surfaces here and
// leaves the failed step unapplied.
func cmdMigrate(_ context.Context) error {
	st, _, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	m := store.NewMigrator(st.DB(), nil)
	pending, err := m.Pending(store.Migrations())
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("%d step(s) still pending after migrate: %v", len(pending), pending)
	}

	color.New(color.FgGreen).Println("schema up to date")
	return nil
}

func cmdCounts(ctx context.Context, args []string) error {
	asJSON := false
	for _, a := range args {
		if a == "--json" {
			asJSON = true
		}
	}

	st, _, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.TableCounts(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}
	return printCounts(counts)
}

func printCounts(counts map[string]int64) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS")
	for _, table := range sortedKeys(counts) {
		fmt.Fprintf(w, "%s\t%d\n", table, counts[table])
	}
	return w.Flush()
}

func cmdVerifyBackup(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fold-relay-admin verify-backup <path>")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	counts, err := store.VerifyBackup(ctx, args[0])
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("backup ok: %s\n", args[0])
	return printCounts(counts)
}

// cmdDiffCounts compares two snapshot files written by `counts --json` and
// flags any table that lost more than the configured fraction of its rows.
func cmdDiffCounts(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: fold-relay-admin diff-counts <before.json> <after.json>")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	before, err := readSnapshot(args[0])
	if err != nil {
		return err
	}
	after, err := readSnapshot(args[1])
	if err != nil {
		return err
	}

	diffs := store.DiffCounts(before, after, cfg.Safeguards.MaxLossFraction)
	if len(diffs) == 0 {
		color.New(color.FgGreen).Println("no suspicious row loss")
		return nil
	}

	red := color.New(color.FgRed, color.Bold)
	for _, d := range diffs {
		red.Printf("LOSS ")
		fmt.Println(d.String())
	}
	return fmt.Errorf("%d table(s) flagged", len(diffs))
}

func readSnapshot(path string) (map[string]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var counts map[string]int64
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return counts, nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
