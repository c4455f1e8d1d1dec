package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var collectionsExportCmd = &cobra.Command{
	Use:   "export <collection>",
	Short: "Export a collection as a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsExport,
}

func runCollectionsExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]

	db, err := resolveStore()
	if err != nil {
		return err
	}
	defer db.Close()

	docs, err := db.List(ctx, name)
	if err != nil {
		return fmt.Errorf("export %s: %w", name, err)
	}

	// List returns raw documents; re-encode as one indented array.
	items := make([]json.RawMessage, len(docs))
	copy(items, docs)
	return printJSON(cmd.OutOrStdout(), items)
}
