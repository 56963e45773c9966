package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmotion/drivesim/internal/export"
	"github.com/openmotion/drivesim/internal/raster"
	"github.com/openmotion/drivesim/internal/sim"
	"github.com/openmotion/drivesim/internal/visualization"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an interactive scene browser",
		Long: `Start a local HTTP server that lists stored scenes and renders
frames on demand. With --episodes, episode trajectory overlays from a
saved Arrow file are served too.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			episodesPath, _ := cmd.Flags().GetString("episodes")
			noOpen, _ := cmd.Flags().GetBool("no-open")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			st, err := openSceneStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			ren, err := raster.New(cfg.Raster)
			if err != nil {
				return fmt.Errorf("failed to create renderer: %w", err)
			}

			var episodes []sim.EpisodeOutput
			if episodesPath != "" {
				episodes, err = export.ReadEpisodesFile(episodesPath)
				if err != nil {
					return err
				}
			}

			srv := visualization.NewServer(st, ren, episodes)

			srvCtx, srvCancel := context.WithCancel(cmd.Context())
			defer srvCancel()

			// Handle SIGINT/SIGTERM for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			notifySignals(sigCh)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case <-sigCh:
					srvCancel()
				case <-srvCtx.Done():
				}
			}()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe(srvCtx) }()

			addr, err := waitForServerAddr(srv.Addr, errCh, 3*time.Second)
			if err != nil {
				return err
			}

			url := "http://" + addr
			fmt.Fprintf(cmd.OutOrStdout(), "Scene browser running at %s\n", url)
			fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

			if !noOpen {
				if err := visualization.OpenBrowser(url); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
				}
			}

			if err := <-errCh; err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("episodes", "", "Arrow IPC file with episode data for trajectory overlays")
	cmd.Flags().Bool("no-open", false, "Don't open the browser after starting")

	return cmd
}

// waitForServerAddr polls addr until the listener is bound, the server
// exits, or the timeout elapses. A listen failure surfaces as its own
// error instead of a generic timeout.
func waitForServerAddr(addr func() string, errCh <-chan error, timeout time.Duration) (string, error) {
	deadline := time.After(timeout)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if a := addr(); a != "" {
			return a, nil
		}
		select {
		case err := <-errCh:
			if err != nil {
				return "", fmt.Errorf("server failed to start: %w", err)
			}
			return "", fmt.Errorf("server stopped before binding a listener")
		case <-deadline:
			return "", fmt.Errorf("server failed to start within %s", timeout)
		case <-tick.C:
		}
	}
}
