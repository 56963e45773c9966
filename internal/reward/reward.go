// Package reward implements the closed-loop evaluation used by the
// environment: per-step safety and imitation verdicts, the scalar reward
// composed from them, and the episode termination decision.
package reward

import (
	"github.com/openmotion/drivesim/internal/config"
	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/route"
	"github.com/openmotion/drivesim/internal/scene"
)

// Verdicts is the per-step evaluation outcome.
type Verdicts struct {
	// Collision is true when the ego footprint overlaps any agent footprint
	// in the current frame.
	Collision bool `json:"collision"`

	// OffRoute is true when the ego has strayed beyond the configured
	// lateral distance from the planned route.
	OffRoute bool `json:"off_route"`

	// Imitation is the L2 distance in meters between the simulated ego
	// position and the logged ego position at the same frame.
	Imitation float64 `json:"imitation"`

	// RouteDistance is the lateral distance to the route polyline in meters.
	RouteDistance float64 `json:"route_distance"`
}

// Evaluator computes verdicts, rewards and termination for one scene.
type Evaluator struct {
	cfg config.RewardConfig
}

// NewEvaluator creates an Evaluator with the given reward configuration.
func NewEvaluator(cfg config.RewardConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate computes the verdicts for the ego at egoPose on frame frameIdx of
// the scene, measured against the planned route r. r may be nil, in which
// case the off-route verdict never fires.
func (e *Evaluator) Evaluate(sc *scene.Scene, r *route.Route, egoPose geom.Pose, frameIdx int) Verdicts {
	v := Verdicts{}

	if frameIdx >= 0 && frameIdx < len(sc.Frames) {
		frame := sc.Frames[frameIdx]
		v.Imitation = egoPose.Position().Dist(frame.Ego.Position())

		egoBox := sc.EgoFootprint(egoPose)
		for _, a := range frame.Agents {
			if egoBox.Intersects(a.Footprint()) {
				v.Collision = true
				break
			}
		}
	}

	if r != nil {
		v.RouteDistance = r.Distance(egoPose.Position())
		v.OffRoute = v.RouteDistance > e.cfg.OffRouteDistance
	}

	return v
}

// Reward composes the scalar step reward from verdicts: the negative
// imitation distance minus the configured safety penalties.
func (e *Evaluator) Reward(v Verdicts) float64 {
	r := -v.Imitation
	if v.Collision {
		r -= e.cfg.CollisionPenalty
	}
	if v.OffRoute {
		r -= e.cfg.OffRoutePenalty
	}
	return r
}

// ShouldStop reports whether the episode terminates on this step's verdicts.
func (e *Evaluator) ShouldStop(v Verdicts) bool {
	if v.Collision && e.cfg.StopOnCollision {
		return true
	}
	if v.OffRoute && e.cfg.StopOnOffRoute {
		return true
	}
	return false
}
