package raster

import (
	"fmt"
	"image/color"

	colors "gopkg.in/go-playground/colors.v1"

	"github.com/openmotion/drivesim/internal/config"
)

// Palette holds the resolved layer colors for the raster.
type Palette struct {
	Background color.RGBA
	Lane       color.RGBA
	Crosswalk  color.RGBA
	Agent      color.RGBA
	Ego        color.RGBA
}

// ParsePalette resolves the hex color strings from raster configuration.
func ParsePalette(cfg config.RasterConfig) (Palette, error) {
	var pal Palette
	for _, entry := range []struct {
		name string
		hex  string
		dst  *color.RGBA
	}{
		{"background_color", cfg.BackgroundColor, &pal.Background},
		{"lane_color", cfg.LaneColor, &pal.Lane},
		{"crosswalk_color", cfg.CrosswalkColor, &pal.Crosswalk},
		{"agent_color", cfg.AgentColor, &pal.Agent},
		{"ego_color", cfg.EgoColor, &pal.Ego},
	} {
		c, err := parseHex(entry.hex)
		if err != nil {
			return Palette{}, fmt.Errorf("invalid %s %q: %w", entry.name, entry.hex, err)
		}
		*entry.dst = c
	}
	return pal, nil
}

func parseHex(hex string) (color.RGBA, error) {
	parsed, err := colors.ParseHEX(hex)
	if err != nil {
		return color.RGBA{}, err
	}
	rgb := parsed.ToRGB()
	return color.RGBA{R: rgb.R, G: rgb.G, B: rgb.B, A: 255}, nil
}
