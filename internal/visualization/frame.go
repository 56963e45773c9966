package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/raster"
	"github.com/openmotion/drivesim/internal/scene"
	"github.com/openmotion/drivesim/internal/sim"
)

// Trajectory overlay colors. The simulated path is drawn last so it stays
// visible where the two paths coincide.
var (
	logTrajectoryColor = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
	simTrajectoryColor = color.RGBA{R: 0xff, G: 0xd5, B: 0x00, A: 0xff}
)

// WriteFramePNG encodes a rendered frame to w as PNG.
func WriteFramePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

// WriteFramePNGFile encodes a rendered frame to the file at path.
func WriteFramePNGFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteFramePNG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// TrajectoryImage renders the first frame of a scene anchored at the logged
// start pose and overlays the logged and simulated trajectories of an
// episode on top of it.
func TrajectoryImage(ren *raster.Renderer, sc *scene.Scene, out sim.EpisodeOutput) (*image.RGBA, error) {
	if len(sc.Frames) == 0 {
		return nil, fmt.Errorf("scene %s has no frames", sc.ID)
	}
	anchor := sc.Frames[0].Ego

	img, err := ren.Render(sc, 0, anchor)
	if err != nil {
		return nil, fmt.Errorf("failed to render base frame: %w", err)
	}

	logPoses := make([]geom.Pose, len(out.Steps))
	simPoses := make([]geom.Pose, len(out.Steps))
	for i, s := range out.Steps {
		logPoses[i] = s.LogPose
		simPoses[i] = s.SimPose
	}
	drawPath(img, ren, anchor, logPoses, logTrajectoryColor)
	drawPath(img, ren, anchor, simPoses, simTrajectoryColor)
	return img, nil
}

// drawPath plots a pose sequence, interpolating between consecutive poses so
// large per-tick displacements still read as one continuous path.
func drawPath(img *image.RGBA, ren *raster.Renderer, anchor geom.Pose, poses []geom.Pose, c color.RGBA) {
	const substeps = 4
	for i, p := range poses {
		if i > 0 {
			for k := 1; k < substeps; k++ {
				mid := geom.Lerp(poses[i-1], p, float64(k)/substeps)
				px, py := ren.ToPixel(anchor, mid.Position())
				plotMark(img, px, py, c)
			}
		}
		px, py := ren.ToPixel(anchor, p.Position())
		plotMark(img, px, py, c)
	}
}

// plotMark paints a 3x3 pixel mark centered at (x, y), skipping pixels
// outside the image bounds.
func plotMark(img *image.RGBA, x, y float64, c color.RGBA) {
	cx, cy := int(x), int(y)
	b := img.Bounds()
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			px, py := cx+dx, cy+dy
			if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
				continue
			}
			img.SetRGBA(px, py, c)
		}
	}
}
