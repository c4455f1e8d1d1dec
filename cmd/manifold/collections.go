package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperengineering/manifold/internal/config"
	"github.com/hyperengineering/manifold/internal/store"
	"github.com/spf13/cobra"
)

var (
	collectionsDBOverride string
	collectionsJSONOutput bool
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Inspect Manifold collections",
	Long:  "List, export, and seed the document collections of a Manifold database without running the server.",
}

func init() {
	collectionsCmd.PersistentFlags().StringVar(&collectionsDBOverride, "db", "",
		"Database path (overrides config and MANIFOLD_DB_PATH)")
	collectionsCmd.PersistentFlags().BoolVar(&collectionsJSONOutput, "json", false,
		"Output in JSON format")

	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsExportCmd)
	collectionsCmd.AddCommand(collectionsImportCmd)
}

// resolveStore opens the SQLite store from config with optional --db override.
func resolveStore() (*store.SQLiteStore, error) {
	dbPath := collectionsDBOverride
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		dbPath = cfg.Database.Path
	}

	return store.NewSQLiteStore(dbPath)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
