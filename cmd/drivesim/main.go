package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openmotion/drivesim/internal/config"
	"github.com/openmotion/drivesim/internal/store"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "drivesim",
		Short: "Closed-loop driving simulation from logged scenes",
		Long: `drivesim replays recorded driving scenes as a closed-loop environment.

A policy controls the ego vehicle step by step while other agents follow
their logged trajectories. Episodes are scored against the log with
displacement errors and collision/off-route checks.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for machine consumption)")
	rootCmd.PersistentFlags().String("config", "", "Path to config YAML (defaults apply when empty or missing)")
	rootCmd.PersistentFlags().String("data", "drivesim.db", "Path to the scene database")

	rootCmd.AddCommand(
		newVersionCmd(),
		newImportCmd(),
		newScenesCmd(),
		newRolloutCmd(),
		newEvalCmd(),
		newRenderCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
				})
			} else {
				fmt.Printf("drivesim version %s (commit: %s, built: %s)\n", version, commit, date)
			}
		},
	}
}

// loadConfig resolves the --config flag into a validated config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openSceneStore opens the scene database named by the --data flag.
func openSceneStore(cmd *cobra.Command) (*store.SQLiteSceneStore, error) {
	path, _ := cmd.Flags().GetString("data")
	st, err := store.NewSQLiteSceneStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene database %s: %w", path, err)
	}
	return st, nil
}

// dataDir returns the directory holding the scene database, used for
// run artifacts like the step trace log.
func dataDir(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("data")
	return filepath.Dir(path)
}
