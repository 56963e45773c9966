// Package metrics evaluates closed-loop episodes against the logged ego
// trajectory: per-scene displacement errors and their cross-scene aggregate.
package metrics

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/openmotion/drivesim/internal/sim"
)

// ErrEmptyEpisode is returned when an episode has no steps to score.
var ErrEmptyEpisode = errors.New("episode has no steps")

// SceneResult holds the displacement-error statistics for one scene.
type SceneResult struct {
	SceneID string  `json:"scene_id"`
	ADE     float64 `json:"ade"` // average displacement error, meters
	FDE     float64 `json:"fde"` // final displacement error, meters
	Steps   int     `json:"steps"`
	Crashed bool    `json:"crashed"`
	Reward  float64 `json:"reward"` // summed step rewards
}

// Report aggregates scene results across a rollout.
type Report struct {
	MeanADE float64       `json:"mean_ade"`
	MeanFDE float64       `json:"mean_fde"`
	Scenes  []SceneResult `json:"scenes"`
}

// DisplacementError scores one episode: ADE is the mean L2 distance between
// the simulated and logged ego positions over all steps, FDE the distance at
// the final step.
func DisplacementError(out sim.EpisodeOutput) (SceneResult, error) {
	if len(out.Steps) == 0 {
		return SceneResult{}, fmt.Errorf("scene %s: %w", out.SceneID, ErrEmptyEpisode)
	}

	dists := make([]float64, len(out.Steps))
	for i, s := range out.Steps {
		dists[i] = s.SimPose.Position().Dist(s.LogPose.Position())
	}

	return SceneResult{
		SceneID: out.SceneID,
		ADE:     stat.Mean(dists, nil),
		FDE:     dists[len(dists)-1],
		Steps:   len(out.Steps),
		Crashed: out.Crashed(),
		Reward:  out.TotalReward(),
	}, nil
}

// Aggregate combines per-scene results into a report. The means are
// unweighted scene averages, matching how closed-loop benchmarks report
// displacement errors.
func Aggregate(results []SceneResult) Report {
	rep := Report{Scenes: results}
	if len(results) == 0 {
		return rep
	}

	ades := make([]float64, len(results))
	fdes := make([]float64, len(results))
	for i, r := range results {
		ades[i] = r.ADE
		fdes[i] = r.FDE
	}
	rep.MeanADE = stat.Mean(ades, nil)
	rep.MeanFDE = stat.Mean(fdes, nil)
	return rep
}
