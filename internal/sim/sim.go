// Package sim implements the closed-loop driving-simulation environment.
//
// The environment owns one episode at a time: Reset loads a logged scene and
// places the ego at its logged start pose, then each Step folds the agent's
// predicted motion onto the ego pose, replays the logged traffic around it,
// re-renders the ego-centric observation, scores the step with the
// closed-loop evaluator, and decides termination. Non-ego agents are pure
// log replay; only the ego is closed-loop.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmotion/drivesim/internal/config"
	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/logging"
	"github.com/openmotion/drivesim/internal/raster"
	"github.com/openmotion/drivesim/internal/reward"
	"github.com/openmotion/drivesim/internal/route"
	"github.com/openmotion/drivesim/internal/scene"
	"github.com/openmotion/drivesim/internal/store"
)

var (
	// ErrNotReset is returned by Step before the first Reset.
	ErrNotReset = errors.New("environment has not been reset")

	// ErrEpisodeDone is returned by Step after the episode finished and
	// before the next Reset.
	ErrEpisodeDone = errors.New("episode is done; call Reset")
)

// Action is the agent's predicted ego motion for one tick, expressed in the
// current ego frame: forward/lateral displacement in meters and heading
// change in radians. With action rescaling enabled, components are treated
// as normalized [-1, 1] values and mapped onto the configured kinematic
// bounds instead.
type Action struct {
	DX   float64 `json:"dx"`
	DY   float64 `json:"dy"`
	DYaw float64 `json:"dyaw"`
}

// Observation is what the agent sees after Reset or Step. Its JSON form is a
// mapping whose "image" entry is the CHW float32 raster tensor.
type Observation struct {
	Image      []float32 `json:"image"`
	SizePx     int       `json:"size_px"`
	Channels   int       `json:"channels"`
	EgoPose    geom.Pose `json:"ego_pose"`
	FrameIndex int       `json:"frame_index"`
}

// Info is the auxiliary step information. SimOuts is populated on the final
// step of an episode when the environment was built with WithSimOuts(true).
type Info struct {
	SimOuts []EpisodeOutput `json:"sim_outs,omitempty"`
}

// Env is a closed-loop simulation environment over a scene dataset.
// An Env is not safe for concurrent use; rollout workers each build their own.
type Env struct {
	name    string
	scenes  store.SceneStore
	cfg     *config.Config
	rend    *raster.Renderer
	eval    *reward.Evaluator
	rescale bool
	simOuts bool
	runID   string
	log     *slog.Logger
	trace   *logging.TraceLogger

	// episode state
	sc     *scene.Scene
	rt     *route.Route
	ego    geom.Pose
	cursor int
	active bool
	done   bool
	steps  []StepRecord
}

// New creates an environment over the given scene store. name identifies the
// environment in logs and episode outputs.
func New(name string, scenes store.SceneStore, cfg *config.Config, opts ...Option) (*Env, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment config: %w", err)
	}

	rend, err := raster.New(cfg.Raster)
	if err != nil {
		return nil, fmt.Errorf("failed to build renderer: %w", err)
	}

	env := &Env{
		name:   name,
		scenes: scenes,
		cfg:    cfg,
		rend:   rend,
		eval:   reward.NewEvaluator(cfg.Reward),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(env)
	}
	return env, nil
}

// NewFromConfigPath creates an environment loading its config from a YAML
// file. An empty or missing path yields the defaults, matching config.Load.
func NewFromConfigPath(name string, configPath string, scenes store.SceneStore, opts ...Option) (*Env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}
	return New(name, scenes, cfg, opts...)
}

// Option configures an Env at construction.
type Option func(*Env)

// WithActionRescale controls whether Step treats actions as normalized
// [-1, 1] values to be mapped onto the kinematic bounds.
func WithActionRescale(on bool) Option { return func(e *Env) { e.rescale = on } }

// WithSimOuts controls whether the final Step of an episode returns the
// collected episode-output record in Info.
func WithSimOuts(on bool) Option { return func(e *Env) { e.simOuts = on } }

// WithRunID tags episode outputs with a rollout run identifier.
func WithRunID(id string) Option { return func(e *Env) { e.runID = id } }

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Env) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTrace sets the JSONL step-trace logger. A nil trace logger is valid
// and disables tracing.
func WithTrace(t *logging.TraceLogger) Option { return func(e *Env) { e.trace = t } }

// Scene returns the scene of the current episode, or nil before Reset.
func (e *Env) Scene() *scene.Scene { return e.sc }

// Route returns the planned route of the current episode, or nil.
func (e *Env) Route() *route.Route { return e.rt }

// Reset starts a new episode on the scene at the given dataset index and
// returns the initial observation.
func (e *Env) Reset(ctx context.Context, sceneIndex int) (Observation, error) {
	sc, err := e.scenes.SceneAt(ctx, sceneIndex)
	if err != nil {
		return Observation{}, fmt.Errorf("failed to load scene %d: %w", sceneIndex, err)
	}
	if err := sc.Validate(); err != nil {
		return Observation{}, fmt.Errorf("scene %d: %w", sceneIndex, err)
	}

	var rt *route.Route
	if len(sc.Map.Lanes) > 0 {
		planner, err := route.NewPlanner(&sc.Map)
		if err != nil {
			return Observation{}, fmt.Errorf("scene %s: %w", sc.ID, err)
		}
		start := sc.Frames[0].Ego.Position()
		goal := sc.Frames[len(sc.Frames)-1].Ego.Position()
		rt, err = planner.Plan(start, goal)
		if err != nil {
			// A scene whose log leaves the mapped lane graph still simulates;
			// it just cannot go off-route.
			e.log.Warn("route planning failed, off-route checks disabled",
				"scene", sc.ID, "error", err)
			rt = nil
		}
	}

	e.sc = sc
	e.rt = rt
	e.ego = sc.Frames[0].Ego
	e.cursor = 0
	e.active = true
	e.done = false
	e.steps = e.steps[:0]

	e.log.Debug("episode reset", "env", e.name, "scene", sc.ID, "frames", len(sc.Frames))

	return e.observe(), nil
}

// Step advances the simulation by one tick. It returns the new observation,
// the step reward, whether the episode finished, and auxiliary info.
func (e *Env) Step(ctx context.Context, a Action) (Observation, float64, bool, Info, error) {
	if !e.active {
		return Observation{}, 0, false, Info{}, ErrNotReset
	}
	if e.done {
		return Observation{}, 0, false, Info{}, ErrEpisodeDone
	}
	if err := ctx.Err(); err != nil {
		return Observation{}, 0, false, Info{}, err
	}

	applied := a
	if e.rescale {
		applied = e.rescaleAction(a)
	}

	e.ego = e.ego.Compose(applied.DX, applied.DY, applied.DYaw)
	e.cursor++

	v := e.eval.Evaluate(e.sc, e.rt, e.ego, e.cursor)
	rew := e.eval.Reward(v)

	lastFrame := e.cursor >= len(e.sc.Frames)-1
	e.done = lastFrame || e.eval.ShouldStop(v)

	rec := StepRecord{
		FrameIndex: e.cursor,
		Action:     applied,
		SimPose:    e.ego,
		LogPose:    e.sc.Frames[e.cursor].Ego,
		Reward:     rew,
		Verdicts:   v,
	}
	e.steps = append(e.steps, rec)

	entry := map[string]any{
		"event":     "step",
		"env":       e.name,
		"scene":     e.sc.ID,
		"frame":     e.cursor,
		"sim_pose":  e.ego,
		"reward":    rew,
		"collision": v.Collision,
		"off_route": v.OffRoute,
		"done":      e.done,
	}
	if e.rt != nil {
		entry["route_progress"] = e.rt.Progress(e.ego.Position())
	}
	e.trace.Log(entry)

	var info Info
	if e.done {
		e.log.Debug("episode finished",
			"env", e.name, "scene", e.sc.ID, "steps", len(e.steps),
			"collision", v.Collision, "off_route", v.OffRoute)
		if e.simOuts {
			info.SimOuts = []EpisodeOutput{e.episodeOutput()}
		}
	}

	return e.observe(), rew, e.done, info, nil
}

// Output returns the episode-output record collected so far. It is valid
// after at least one Step and does not require WithSimOuts.
func (e *Env) Output() (EpisodeOutput, error) {
	if !e.active {
		return EpisodeOutput{}, ErrNotReset
	}
	return e.episodeOutput(), nil
}

// rescaleAction clamps each component to [-1, 1] and maps it onto the
// kinematic bounds for one tick.
func (e *Env) rescaleAction(a Action) Action {
	return Action{
		DX:   clamp(a.DX) * e.cfg.Sim.MaxStepDistance,
		DY:   clamp(a.DY) * e.cfg.Sim.MaxStepDistance,
		DYaw: clamp(a.DYaw) * e.cfg.Sim.MaxStepYaw,
	}
}

func clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func (e *Env) observe() Observation {
	img, err := e.rend.Render(e.sc, e.cursor, e.ego)
	if err != nil {
		// Cursor is always a valid frame index here; treat a render failure
		// as a bug rather than a recoverable condition.
		panic(fmt.Sprintf("render frame %d of scene %s: %v", e.cursor, e.sc.ID, err))
	}
	return Observation{
		Image:      raster.AsTensor(img),
		SizePx:     e.rend.SizePx(),
		Channels:   3,
		EgoPose:    e.ego,
		FrameIndex: e.cursor,
	}
}

func (e *Env) episodeOutput() EpisodeOutput {
	out := EpisodeOutput{
		SceneID: e.sc.ID,
		RunID:   e.runID,
		Steps:   make([]StepRecord, len(e.steps)),
	}
	copy(out.Steps, e.steps)
	return out
}
