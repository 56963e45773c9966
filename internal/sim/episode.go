package sim

import (
	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/reward"
)

// StepRecord captures one simulated tick of an episode: the action taken,
// the resulting ego pose next to the logged pose, and the step's score.
type StepRecord struct {
	FrameIndex int             `json:"frame_index"`
	Action     Action          `json:"action"`
	SimPose    geom.Pose       `json:"sim_pose"`
	LogPose    geom.Pose       `json:"log_pose"`
	Reward     float64         `json:"reward"`
	Verdicts   reward.Verdicts `json:"verdicts"`
}

// EpisodeOutput is the per-scene episode record consumed by metric
// evaluation, the Arrow exporter, and the visualizer.
type EpisodeOutput struct {
	SceneID string       `json:"scene_id"`
	RunID   string       `json:"run_id,omitempty"`
	Steps   []StepRecord `json:"steps"`
}

// SimTrajectory returns the simulated ego positions in step order.
func (o EpisodeOutput) SimTrajectory() geom.Polyline {
	pl := make(geom.Polyline, len(o.Steps))
	for i, s := range o.Steps {
		pl[i] = s.SimPose.Position()
	}
	return pl
}

// LogTrajectory returns the logged ego positions in step order.
func (o EpisodeOutput) LogTrajectory() geom.Polyline {
	pl := make(geom.Polyline, len(o.Steps))
	for i, s := range o.Steps {
		pl[i] = s.LogPose.Position()
	}
	return pl
}

// TotalReward returns the summed step rewards of the episode.
func (o EpisodeOutput) TotalReward() float64 {
	var total float64
	for _, s := range o.Steps {
		total += s.Reward
	}
	return total
}

// Crashed reports whether any step of the episode recorded a collision.
func (o EpisodeOutput) Crashed() bool {
	for _, s := range o.Steps {
		if s.Verdicts.Collision {
			return true
		}
	}
	return false
}
