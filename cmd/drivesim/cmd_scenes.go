package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openmotion/drivesim/internal/store"
)

func newScenesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenes",
		Short: "List scenes in the scene database",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			export, _ := cmd.Flags().GetString("export")

			st, err := openSceneStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if export != "" {
				return exportScenes(cmd, st, export)
			}

			count, err := st.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to count scenes: %w", err)
			}

			type sceneRow struct {
				Index    int     `json:"index"`
				ID       string  `json:"id"`
				Name     string  `json:"name,omitempty"`
				Frames   int     `json:"frames"`
				Agents   int     `json:"agents"`
				Duration float64 `json:"duration_s"`
			}

			rows := make([]sceneRow, 0, count)
			for i := 0; i < count; i++ {
				sc, err := st.SceneAt(cmd.Context(), i)
				if err != nil {
					return fmt.Errorf("failed to load scene %d: %w", i, err)
				}
				agents := 0
				if len(sc.Frames) > 0 {
					agents = len(sc.Frames[0].Agents)
				}
				rows = append(rows, sceneRow{
					Index:    i,
					ID:       sc.ID,
					Name:     sc.Name,
					Frames:   len(sc.Frames),
					Agents:   agents,
					Duration: sc.Duration(),
				})
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"scenes": rows,
					"count":  len(rows),
				})
				return nil
			}

			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scenes in database.")
				fmt.Fprintln(cmd.OutOrStdout(), "\nUse 'drivesim import <scenes.jsonl>' to load recordings.")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Scenes (%d):\n\n", len(rows))
			for _, r := range rows {
				name := r.ID
				if r.Name != "" {
					name = fmt.Sprintf("%s (%s)", r.ID, r.Name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%4d. %s\n", r.Index, name)
				fmt.Fprintf(cmd.OutOrStdout(), "      %d frames, %d agents, %.1fs\n", r.Frames, r.Agents, r.Duration)
			}
			return nil
		},
	}

	cmd.Flags().String("export", "", "Write all scenes to the given JSONL file instead of listing")

	return cmd
}

func exportScenes(cmd *cobra.Command, st store.SceneStore, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := store.ExportScenesToJSONL(cmd.Context(), st, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to export scenes: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
			"status": "exported",
			"path":   path,
		})
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Scenes written to %s\n", path)
	}
	return nil
}
