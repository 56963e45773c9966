package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmotion/drivesim/internal/store"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <scenes.jsonl>",
		Short: "Import scenes from a JSONL file into the scene database",
		Long: `Import recorded scenes into the scene database.

The input is JSONL with one scene per line. Re-importing a scene with an
existing ID replaces it in place, keeping its dataset index stable.

Example:
  drivesim import --data scenes.db recordings.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			st, err := openSceneStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := store.ImportScenesFromFile(cmd.Context(), st, args[0])
			if err != nil {
				return fmt.Errorf("failed to import scenes: %w", err)
			}

			total, err := st.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to count scenes: %w", err)
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"status":   "imported",
					"imported": n,
					"total":    total,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d scenes (%d total in database).\n", n, total)
			}
			return nil
		},
	}
	return cmd
}
