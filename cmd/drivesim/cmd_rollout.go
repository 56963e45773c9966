package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmotion/drivesim/internal/export"
	"github.com/openmotion/drivesim/internal/logging"
	"github.com/openmotion/drivesim/internal/rollout"
)

func newRolloutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Run closed-loop episodes over stored scenes",
		Long: `Run a policy in closed loop over stored scenes and report
displacement errors against the logged trajectories.

Episodes run in parallel workers; the report keeps scene order. Use
--arrow-out to keep the per-step episode data for later evaluation.

Examples:
  drivesim rollout --policy replay
  drivesim rollout --policy constant --scenes 0,3,7 --arrow-out episodes.arrow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			policyName, _ := cmd.Flags().GetString("policy")
			sceneSpec, _ := cmd.Flags().GetString("scenes")
			parallel, _ := cmd.Flags().GetInt("parallel")
			maxSteps, _ := cmd.Flags().GetInt("max-steps")
			stepDistance, _ := cmd.Flags().GetFloat64("step-distance")
			arrowOut, _ := cmd.Flags().GetString("arrow-out")
			rescale, _ := cmd.Flags().GetBool("rescale")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if parallel > 0 {
				cfg.Rollout.Parallelism = parallel
			}
			if maxSteps > 0 {
				cfg.Rollout.MaxSteps = maxSteps
			}

			st, err := openSceneStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			factory, err := rollout.NamedPolicyFactory(policyName, stepDistance)
			if err != nil {
				return err
			}

			log := logging.NewLogger(cfg.Logging.Level, os.Stderr)
			trace := logging.NewTraceLogger(dataDir(cmd), cfg.Logging.Level)
			defer trace.Close()

			runner := rollout.NewRunner(st, cfg, policyName, factory,
				rollout.WithLogger(log),
				rollout.WithTrace(trace),
				rollout.WithActionRescale(rescale),
			)

			indexes, err := parseSceneIndexes(sceneSpec)
			if err != nil {
				return err
			}
			if indexes == nil {
				indexes, err = runner.AllScenes(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list scenes: %w", err)
				}
			}
			if len(indexes) == 0 {
				return fmt.Errorf("no scenes to roll out; import scenes first")
			}

			report, err := runner.Run(cmd.Context(), indexes)
			if err != nil {
				return err
			}

			if arrowOut != "" {
				if err := export.WriteEpisodesFile(arrowOut, report.Episodes); err != nil {
					return err
				}
			}

			if jsonOut {
				// Per-step episode data goes to the Arrow file, not stdout.
				trimmed := *report
				trimmed.Episodes = nil
				json.NewEncoder(cmd.OutOrStdout()).Encode(&trimmed)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Rollout %s (policy %s): %d scenes in %s\n",
				report.RunID, report.Policy, len(report.Report.Scenes), report.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(cmd.OutOrStdout(), "  mean ADE: %.3f m\n", report.Report.MeanADE)
			fmt.Fprintf(cmd.OutOrStdout(), "  mean FDE: %.3f m\n\n", report.Report.MeanFDE)
			for i, r := range report.Report.Scenes {
				status := ""
				if r.Crashed {
					status = "  [crashed]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%4d. %s  ADE %.3f  FDE %.3f  %d steps  reward %.2f%s\n",
					indexes[i], r.SceneID, r.ADE, r.FDE, r.Steps, r.Reward, status)
			}
			if arrowOut != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nEpisode data written to %s\n", arrowOut)
			}
			return nil
		},
	}

	cmd.Flags().String("policy", "replay", "Policy to drive the ego: replay or constant")
	cmd.Flags().String("scenes", "", "Comma-separated scene indexes (empty = all)")
	cmd.Flags().Int("parallel", 0, "Worker count (0 = config value)")
	cmd.Flags().Int("max-steps", 0, "Cap steps per episode (0 = config value)")
	cmd.Flags().Float64("step-distance", 1.0, "Forward step in meters for the constant policy")
	cmd.Flags().String("arrow-out", "", "Write per-step episode data to this Arrow IPC file")
	cmd.Flags().Bool("rescale", false, "Treat policy actions as normalized [-1, 1] and rescale to meters")

	return cmd
}

// parseSceneIndexes parses "0,3,7" into indexes; empty input returns nil.
func parseSceneIndexes(spec string) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}
	parts := strings.Split(spec, ",")
	indexes := make([]int, 0, len(parts))
	for _, p := range parts {
		idx, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid scene index %q", p)
		}
		if idx < 0 {
			return nil, fmt.Errorf("scene index must be non-negative, got %d", idx)
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}
