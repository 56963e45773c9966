package rollout

import (
	"fmt"

	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/scene"
	"github.com/openmotion/drivesim/internal/sim"
)

// Policy maps the current observation to the next ego action. Implementations
// must be safe to use from a single rollout worker; one Policy instance is
// created per episode via PolicyFactory.
type Policy interface {
	Act(obs sim.Observation) (sim.Action, error)
}

// PolicyFactory builds a fresh policy for an episode on the given scene.
type PolicyFactory func(sc *scene.Scene) Policy

// ConstantVelocityPolicy drives straight ahead at a fixed displacement per
// tick, ignoring the observation. It is the baseline stand-in used to sanity
// check environments and rollout plumbing.
type ConstantVelocityPolicy struct {
	StepDistance float64
}

// Act returns the constant forward displacement.
func (p ConstantVelocityPolicy) Act(sim.Observation) (sim.Action, error) {
	return sim.Action{DX: p.StepDistance}, nil
}

// LogReplayPolicy replays the scene's logged ego motion: at frame i it emits
// exactly the displacement that takes the logged pose at i to the logged pose
// at i+1. Closed-loop metrics for this policy are zero by construction, which
// makes it the calibration baseline.
type LogReplayPolicy struct {
	sc *scene.Scene
}

// NewLogReplayPolicy creates a replay policy for the given scene.
func NewLogReplayPolicy(sc *scene.Scene) *LogReplayPolicy {
	return &LogReplayPolicy{sc: sc}
}

// Act emits the motion that takes the current ego pose onto the logged pose
// of the next frame, so the policy also steers back after any drift.
func (p *LogReplayPolicy) Act(obs sim.Observation) (sim.Action, error) {
	i := obs.FrameIndex
	if i < 0 || i+1 >= len(p.sc.Frames) {
		return sim.Action{}, fmt.Errorf("no logged motion for frame %d", i)
	}
	next := p.sc.Frames[i+1].Ego
	local := obs.EgoPose.ToLocal(next.Position())
	return sim.Action{
		DX:   local.X,
		DY:   local.Y,
		DYaw: geom.NormalizeYaw(next.Yaw - obs.EgoPose.Yaw),
	}, nil
}

// NamedPolicyFactory resolves the policy names accepted by the CLI.
// Supported: "constant" (constant velocity) and "replay" (log replay).
func NamedPolicyFactory(name string, stepDistance float64) (PolicyFactory, error) {
	switch name {
	case "constant":
		return func(*scene.Scene) Policy {
			return ConstantVelocityPolicy{StepDistance: stepDistance}
		}, nil
	case "replay":
		return func(sc *scene.Scene) Policy {
			return NewLogReplayPolicy(sc)
		}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q (valid: constant, replay)", name)
	}
}
