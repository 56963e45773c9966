// Package config provides unified configuration loading for drivesim.
// It supports loading from YAML files, a .env file, and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config contains all drivesim configuration settings.
type Config struct {
	// Raster contains settings for the top-down observation renderer.
	Raster RasterConfig `json:"raster" yaml:"raster"`

	// Reward contains settings for closed-loop reward and termination.
	Reward RewardConfig `json:"reward" yaml:"reward"`

	// Sim contains settings for the environment step dynamics.
	Sim SimConfig `json:"sim" yaml:"sim"`

	// Rollout contains settings for multi-scene rollout runs.
	Rollout RolloutConfig `json:"rollout" yaml:"rollout"`

	// Logging contains settings for operational and step-trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoggingConfig configures drivesim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables step tracing to <data dir>/trace.jsonl.
	// "trace" additionally includes per-step verdict detail.
	Level string `json:"level" yaml:"level"`
}

// RasterConfig configures the ego-centric top-down raster.
type RasterConfig struct {
	// SizePx is the raster edge length in pixels. Rasters are square.
	SizePx int `json:"size_px" yaml:"size_px"`

	// Resolution is the size of one pixel in meters.
	Resolution float64 `json:"resolution" yaml:"resolution"`

	// EgoOffsetX and EgoOffsetY place the ego anchor as fractions of the
	// raster, measured from the left and bottom edges. The default puts the
	// ego a quarter in from the left, vertically centered, so most of the
	// raster shows the road ahead.
	EgoOffsetX float64 `json:"ego_offset_x" yaml:"ego_offset_x"`
	EgoOffsetY float64 `json:"ego_offset_y" yaml:"ego_offset_y"`

	// Layer colors as hex strings, e.g. "#1f77b4".
	BackgroundColor string `json:"background_color" yaml:"background_color"`
	LaneColor       string `json:"lane_color" yaml:"lane_color"`
	CrosswalkColor  string `json:"crosswalk_color" yaml:"crosswalk_color"`
	AgentColor      string `json:"agent_color" yaml:"agent_color"`
	EgoColor        string `json:"ego_color" yaml:"ego_color"`
}

// RewardConfig configures the closed-loop evaluator.
type RewardConfig struct {
	// CollisionPenalty is subtracted from the reward on any collision step.
	CollisionPenalty float64 `json:"collision_penalty" yaml:"collision_penalty"`

	// OffRoutePenalty is subtracted from the reward on any off-route step.
	OffRoutePenalty float64 `json:"off_route_penalty" yaml:"off_route_penalty"`

	// OffRouteDistance is the lateral distance from the route polyline, in
	// meters, beyond which the ego counts as off-route.
	OffRouteDistance float64 `json:"off_route_distance" yaml:"off_route_distance"`

	// StopOnCollision and StopOnOffRoute terminate the episode when the
	// corresponding verdict fires.
	StopOnCollision bool `json:"stop_on_collision" yaml:"stop_on_collision"`
	StopOnOffRoute  bool `json:"stop_on_off_route" yaml:"stop_on_off_route"`
}

// SimConfig configures the environment step dynamics.
type SimConfig struct {
	// MaxStepDistance bounds the per-tick displacement magnitude in meters.
	// When action rescaling is enabled, a normalized [-1, 1] action maps onto
	// [-MaxStepDistance, MaxStepDistance] per axis.
	MaxStepDistance float64 `json:"max_step_distance" yaml:"max_step_distance"`

	// MaxStepYaw bounds the per-tick heading change in radians.
	MaxStepYaw float64 `json:"max_step_yaw" yaml:"max_step_yaw"`
}

// RolloutConfig configures multi-scene rollout runs.
type RolloutConfig struct {
	// Parallelism is the number of scenes simulated concurrently. Values
	// below 1 mean serial execution.
	Parallelism int `json:"parallelism" yaml:"parallelism"`

	// MaxSteps caps the episode length. 0 means run to the end of the scene.
	MaxSteps int `json:"max_steps" yaml:"max_steps"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Raster: RasterConfig{
			SizePx:          224,
			Resolution:      0.5,
			EgoOffsetX:      0.25,
			EgoOffsetY:      0.5,
			BackgroundColor: "#000000",
			LaneColor:       "#404040",
			CrosswalkColor:  "#806020",
			AgentColor:      "#00a0ff",
			EgoColor:        "#ff2020",
		},
		Reward: RewardConfig{
			CollisionPenalty: 25.0,
			OffRoutePenalty:  10.0,
			OffRouteDistance: 4.0,
			StopOnCollision:  true,
			StopOnOffRoute:   true,
		},
		Sim: SimConfig{
			MaxStepDistance: 3.0,
			MaxStepYaw:      0.3,
		},
		Rollout: RolloutConfig{
			Parallelism: 4,
			MaxSteps:    0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the given YAML file path, falling back to
// defaults when path is empty or the file does not exist. A .env file in the
// working directory is loaded first, then environment overrides are applied
// on top of the file values.
func Load(path string) (*Config, error) {
	// Missing .env is fine; only surface real read failures via debug paths.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Raster.SizePx <= 0 {
		return fmt.Errorf("raster size_px must be positive, got %d", c.Raster.SizePx)
	}
	if c.Raster.Resolution <= 0 {
		return fmt.Errorf("raster resolution must be positive, got %f", c.Raster.Resolution)
	}
	if c.Raster.EgoOffsetX < 0 || c.Raster.EgoOffsetX > 1 || c.Raster.EgoOffsetY < 0 || c.Raster.EgoOffsetY > 1 {
		return fmt.Errorf("raster ego offsets must be within [0, 1], got (%f, %f)", c.Raster.EgoOffsetX, c.Raster.EgoOffsetY)
	}
	if c.Reward.OffRouteDistance <= 0 {
		return fmt.Errorf("off_route_distance must be positive, got %f", c.Reward.OffRouteDistance)
	}
	if c.Sim.MaxStepDistance <= 0 {
		return fmt.Errorf("max_step_distance must be positive, got %f", c.Sim.MaxStepDistance)
	}
	if c.Sim.MaxStepYaw <= 0 {
		return fmt.Errorf("max_step_yaw must be positive, got %f", c.Sim.MaxStepYaw)
	}

	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DRIVESIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DRIVESIM_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rollout.Parallelism = n
		}
	}
	if v := os.Getenv("DRIVESIM_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rollout.MaxSteps = n
		}
	}
	if v := os.Getenv("DRIVESIM_OFF_ROUTE_DISTANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Reward.OffRouteDistance = f
		}
	}
}
