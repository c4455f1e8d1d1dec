package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all collections",
	Args:  cobra.NoArgs,
	RunE:  runCollectionsList,
}

func runCollectionsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := resolveStore()
	if err != nil {
		return err
	}
	defer db.Close()

	infos, err := db.Collections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	if collectionsJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"collections": infos,
			"total":       len(infos),
		})
	}

	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No collections found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "NAME\tDOCUMENTS\tREVISION")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%d\n", info.Name, info.Count, info.Revision)
	}
	w.Flush()

	return nil
}
