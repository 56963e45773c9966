package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmotion/drivesim/internal/export"
	"github.com/openmotion/drivesim/internal/metrics"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <episodes.arrow>",
		Short: "Compute displacement metrics from saved episode data",
		Long: `Score previously saved episodes against their logged trajectories.

Reads an Arrow IPC file produced by 'drivesim rollout --arrow-out' and
reports ADE/FDE per scene plus the means across scenes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			outs, err := export.ReadEpisodesFile(args[0])
			if err != nil {
				return err
			}
			if len(outs) == 0 {
				return fmt.Errorf("no episodes in %s", args[0])
			}

			results := make([]metrics.SceneResult, 0, len(outs))
			for _, out := range outs {
				r, err := metrics.DisplacementError(out)
				if err != nil {
					return fmt.Errorf("failed to score scene %s: %w", out.SceneID, err)
				}
				results = append(results, r)
			}
			report := metrics.Aggregate(results)

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(report)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Episodes (%d):\n", len(report.Scenes))
			fmt.Fprintf(cmd.OutOrStdout(), "  mean ADE: %.3f m\n", report.MeanADE)
			fmt.Fprintf(cmd.OutOrStdout(), "  mean FDE: %.3f m\n\n", report.MeanFDE)
			for _, r := range report.Scenes {
				status := ""
				if r.Crashed {
					status = "  [crashed]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  ADE %.3f  FDE %.3f  %d steps%s\n",
					r.SceneID, r.ADE, r.FDE, r.Steps, status)
			}
			return nil
		},
	}
	return cmd
}
