package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmotion/drivesim/internal/raster"
	"github.com/openmotion/drivesim/internal/visualization"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a scene frame as PNG or its lane graph as DOT",
		Long: `Render one frame of a stored scene as an ego-centric PNG, or the
scene's lane connectivity as Graphviz DOT.

Examples:
  drivesim render --scene 0 --frame 10 -o frame.png
  drivesim render --scene 0 --format dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			sceneIdx, _ := cmd.Flags().GetInt("scene")
			frameIdx, _ := cmd.Flags().GetInt("frame")
			output, _ := cmd.Flags().GetString("output")
			format, _ := cmd.Flags().GetString("format")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			st, err := openSceneStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			sc, err := st.SceneAt(cmd.Context(), sceneIdx)
			if err != nil {
				return fmt.Errorf("failed to load scene %d: %w", sceneIdx, err)
			}

			switch visualization.Format(format) {
			case visualization.FormatDOT:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(sc))
				return nil

			case visualization.FormatPNG:
				if frameIdx < 0 || frameIdx >= len(sc.Frames) {
					return fmt.Errorf("frame index %d out of range [0, %d)", frameIdx, len(sc.Frames))
				}

				ren, err := raster.New(cfg.Raster)
				if err != nil {
					return fmt.Errorf("failed to create renderer: %w", err)
				}
				img, err := ren.Render(sc, frameIdx, sc.Frames[frameIdx].Ego)
				if err != nil {
					return fmt.Errorf("failed to render frame: %w", err)
				}

				outPath := output
				if outPath == "" {
					outPath = fmt.Sprintf("%s-frame-%03d.png", sc.ID, frameIdx)
				}
				if err := visualization.WriteFramePNGFile(outPath, img); err != nil {
					return err
				}

				if jsonOut {
					json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
						"status": "rendered",
						"scene":  sc.ID,
						"frame":  frameIdx,
						"path":   outPath,
					})
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Frame written to %s\n", outPath)
				}
				return nil

			default:
				return fmt.Errorf("unsupported format %q (use 'png' or 'dot')", format)
			}
		},
	}

	cmd.Flags().Int("scene", 0, "Scene index to render")
	cmd.Flags().Int("frame", 0, "Frame index within the scene (png format only)")
	cmd.Flags().StringP("output", "o", "", "Output file path (png format only)")
	cmd.Flags().String("format", "png", "Output format: png or dot")

	return cmd
}
