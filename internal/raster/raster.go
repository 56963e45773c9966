// Package raster renders the ego-centric top-down observation: vector map
// geometry and agent boxes painted into an RGBA image around the ego pose.
package raster

import (
	"fmt"
	"image"
	"image/color"

	"github.com/openmotion/drivesim/internal/config"
	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/scene"
)

// Renderer rasterizes scenes into fixed-size ego-centric images.
//
// The raster frame has the ego heading pointing along +X (to the right of the
// image) with the ego anchored at a configurable offset, so most of the image
// shows the road ahead of the vehicle.
type Renderer struct {
	sizePx     int
	resolution float64 // meters per pixel
	anchorX    float64 // ego anchor, pixels from the left
	anchorY    float64 // ego anchor, pixels from the top
	palette    Palette
}

// New creates a Renderer from raster configuration.
func New(cfg config.RasterConfig) (*Renderer, error) {
	pal, err := ParsePalette(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.SizePx <= 0 || cfg.Resolution <= 0 {
		return nil, fmt.Errorf("invalid raster geometry: %dpx at %fm/px", cfg.SizePx, cfg.Resolution)
	}
	return &Renderer{
		sizePx:     cfg.SizePx,
		resolution: cfg.Resolution,
		anchorX:    cfg.EgoOffsetX * float64(cfg.SizePx),
		anchorY:    (1 - cfg.EgoOffsetY) * float64(cfg.SizePx),
		palette:    pal,
	}, nil
}

// SizePx returns the raster edge length in pixels.
func (r *Renderer) SizePx() int { return r.sizePx }

// ToPixel maps a world point into raster pixel coordinates for the given ego
// pose. The ego position maps exactly to the anchor pixel.
func (r *Renderer) ToPixel(ego geom.Pose, p geom.Point) (float64, float64) {
	local := ego.ToLocal(p)
	return r.anchorX + local.X/r.resolution, r.anchorY - local.Y/r.resolution
}

// Render paints the scene around the given ego pose: lane surfaces first,
// then crosswalks, then the agents tracked at frameIdx, then the ego box on
// top.
func (r *Renderer) Render(sc *scene.Scene, frameIdx int, ego geom.Pose) (*image.RGBA, error) {
	if frameIdx < 0 || frameIdx >= len(sc.Frames) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", frameIdx, len(sc.Frames))
	}

	img := image.NewRGBA(image.Rect(0, 0, r.sizePx, r.sizePx))
	fillBackground(img, r.palette.Background)

	for _, l := range sc.Map.Lanes {
		r.paintLane(img, ego, l)
	}
	for _, cw := range sc.Map.Crosswalks {
		r.fillWorldPolygon(img, ego, cw.Polygon, r.palette.Crosswalk)
	}
	for _, a := range sc.Frames[frameIdx].Agents {
		r.paintBox(img, ego, a.Footprint(), r.palette.Agent)
	}
	r.paintBox(img, ego, sc.EgoFootprint(ego), r.palette.Ego)

	return img, nil
}

// paintLane fills the surface between the lane bounds when both are present,
// and falls back to a thick centerline stroke otherwise.
func (r *Renderer) paintLane(img *image.RGBA, ego geom.Pose, l scene.Lane) {
	if len(l.LeftBound) >= 2 && len(l.RightBound) >= 2 {
		poly := make(geom.Polyline, 0, len(l.LeftBound)+len(l.RightBound))
		poly = append(poly, l.LeftBound...)
		for i := len(l.RightBound) - 1; i >= 0; i-- {
			poly = append(poly, l.RightBound[i])
		}
		r.fillWorldPolygon(img, ego, poly, r.palette.Lane)
		return
	}
	// Stroke roughly one lane width.
	halfWidth := 1.5 / r.resolution
	r.strokePolyline(img, ego, l.Centerline, halfWidth, r.palette.Lane)
}

// paintBox fills an oriented box footprint.
func (r *Renderer) paintBox(img *image.RGBA, ego geom.Pose, b geom.Box, c color.RGBA) {
	corners := b.Corners()
	r.fillWorldPolygon(img, ego, corners[:], c)
}

// fillWorldPolygon fills a world-frame polygon using even-odd scanline
// filling in pixel space.
func (r *Renderer) fillWorldPolygon(img *image.RGBA, ego geom.Pose, poly []geom.Point, c color.RGBA) {
	if len(poly) < 3 {
		return
	}
	xs := make([]float64, len(poly))
	ys := make([]float64, len(poly))
	minY, maxY := 1e18, -1e18
	for i, p := range poly {
		xs[i], ys[i] = r.ToPixel(ego, p)
		if ys[i] < minY {
			minY = ys[i]
		}
		if ys[i] > maxY {
			maxY = ys[i]
		}
	}

	y0 := clampInt(int(minY), 0, r.sizePx-1)
	y1 := clampInt(int(maxY)+1, 0, r.sizePx-1)

	for py := y0; py <= y1; py++ {
		scan := float64(py) + 0.5
		var crossings []float64
		n := len(poly)
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			ya, yb := ys[i], ys[j]
			if (ya <= scan && yb > scan) || (yb <= scan && ya > scan) {
				t := (scan - ya) / (yb - ya)
				crossings = append(crossings, xs[i]+t*(xs[j]-xs[i]))
			}
		}
		if len(crossings) < 2 {
			continue
		}
		sortFloats(crossings)
		for k := 0; k+1 < len(crossings); k += 2 {
			lo, hi := crossings[k], crossings[k+1]
			// Spans fully outside the raster must not clamp onto the edge.
			if hi < 0 || lo >= float64(r.sizePx) {
				continue
			}
			xa := clampInt(int(lo+0.5), 0, r.sizePx-1)
			xb := clampInt(int(hi-0.5)+1, 0, r.sizePx-1)
			for px := xa; px <= xb; px++ {
				img.SetRGBA(px, py, c)
			}
		}
	}
}

// strokePolyline paints a polyline with the given half-width in pixels.
func (r *Renderer) strokePolyline(img *image.RGBA, ego geom.Pose, pl geom.Polyline, halfWidth float64, c color.RGBA) {
	if len(pl) < 2 {
		return
	}
	if halfWidth < 0.5 {
		halfWidth = 0.5
	}
	for i := 1; i < len(pl); i++ {
		x0, y0 := r.ToPixel(ego, pl[i-1])
		x1, y1 := r.ToPixel(ego, pl[i])
		r.strokeSegment(img, x0, y0, x1, y1, halfWidth, c)
	}
}

// strokeSegment walks the segment in sub-pixel steps, stamping a square brush.
func (r *Renderer) strokeSegment(img *image.RGBA, x0, y0, x1, y1, halfWidth float64, c color.RGBA) {
	dx := x1 - x0
	dy := y1 - y0
	steps := int(maxFloat(absFloat(dx), absFloat(dy))) + 1
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		cx := x0 + dx*t
		cy := y0 + dy*t
		// Brush stamps fully outside the raster must not clamp onto the edge.
		if cx+halfWidth < 0 || cx-halfWidth >= float64(r.sizePx) ||
			cy+halfWidth < 0 || cy-halfWidth >= float64(r.sizePx) {
			continue
		}
		px0 := clampInt(int(cx-halfWidth), 0, r.sizePx-1)
		px1 := clampInt(int(cx+halfWidth), 0, r.sizePx-1)
		py0 := clampInt(int(cy-halfWidth), 0, r.sizePx-1)
		py1 := clampInt(int(cy+halfWidth), 0, r.sizePx-1)
		for py := py0; py <= py1; py++ {
			for px := px0; px <= px1; px++ {
				img.SetRGBA(px, py, c)
			}
		}
	}
}

func fillBackground(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func sortFloats(v []float64) {
	// Insertion sort; crossing lists are tiny.
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}
