package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var collectionsImportCmd = &cobra.Command{
	Use:   "import <collection>",
	Short: "Import documents from a JSON array on stdin",
	Long:  "Reads a JSON array of objects from stdin and inserts each as a new document. The store assigns ids.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsImport,
}

func runCollectionsImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	var docs []json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parse input: expected a JSON array of objects: %w", err)
	}

	db, err := resolveStore()
	if err != nil {
		return err
	}
	defer db.Close()

	for i, doc := range docs {
		if _, err := db.Insert(ctx, name, doc); err != nil {
			return fmt.Errorf("insert document %d: %w", i, err)
		}
	}

	if collectionsJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"collection": name,
			"imported":   len(docs),
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d documents into %q\n", len(docs), name)
	return nil
}
