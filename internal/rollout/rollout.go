// Package rollout runs closed-loop episodes across many scenes and turns the
// collected episode outputs into a metric report. Scenes are simulated
// concurrently within the process; each worker owns its own environment.
package rollout

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/openmotion/drivesim/internal/config"
	"github.com/openmotion/drivesim/internal/logging"
	"github.com/openmotion/drivesim/internal/metrics"
	"github.com/openmotion/drivesim/internal/sim"
	"github.com/openmotion/drivesim/internal/store"
)

// RunReport is the outcome of a rollout run: the metric report plus the raw
// episode outputs, in scene-index order.
type RunReport struct {
	RunID    string              `json:"run_id"`
	Policy   string              `json:"policy"`
	Report   metrics.Report      `json:"report"`
	Episodes []sim.EpisodeOutput `json:"episodes,omitempty"`
	Elapsed  time.Duration       `json:"elapsed"`
}

// Runner orchestrates multi-scene rollouts.
type Runner struct {
	scenes  store.SceneStore
	cfg     *config.Config
	policy  PolicyFactory
	name    string
	log     *slog.Logger
	trace   *logging.TraceLogger
	rescale bool
}

// NewRunner creates a rollout runner. policyName labels the policy in the
// report; factory builds one policy per episode.
func NewRunner(scenes store.SceneStore, cfg *config.Config, policyName string, factory PolicyFactory, opts ...RunnerOption) *Runner {
	r := &Runner{
		scenes: scenes,
		cfg:    cfg,
		policy: factory,
		name:   policyName,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithTrace sets the JSONL step-trace logger shared by all workers.
func WithTrace(t *logging.TraceLogger) RunnerOption {
	return func(r *Runner) { r.trace = t }
}

// WithActionRescale enables action rescaling on the worker environments.
func WithActionRescale(on bool) RunnerOption {
	return func(r *Runner) { r.rescale = on }
}

// AllScenes returns the index list [0, Count) for rolling out the whole
// dataset.
func (r *Runner) AllScenes(ctx context.Context) ([]int, error) {
	n, err := r.scenes.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to count scenes")
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx, nil
}

// Run simulates one episode per scene index and aggregates the metrics.
// Episodes run concurrently up to the configured parallelism; the first
// failure cancels the remaining work.
func (r *Runner) Run(ctx context.Context, sceneIndexes []int) (*RunReport, error) {
	start := time.Now()
	runID := uuid.NewString()

	r.log.Info("rollout starting",
		"run_id", runID, "policy", r.name,
		"scenes", len(sceneIndexes), "parallelism", r.cfg.Rollout.Parallelism)

	type indexed struct {
		order int
		out   sim.EpisodeOutput
	}
	results := make([]indexed, len(sceneIndexes))

	g, gctx := errgroup.WithContext(ctx)
	limit := r.cfg.Rollout.Parallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, sceneIdx := range sceneIndexes {
		i, sceneIdx := i, sceneIdx
		g.Go(func() error {
			out, err := r.runEpisode(gctx, runID, sceneIdx)
			if err != nil {
				return errors.Wrapf(err, "scene index %d", sceneIdx)
			}
			results[i] = indexed{order: i, out: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(a, b int) bool { return results[a].order < results[b].order })

	episodes := make([]sim.EpisodeOutput, len(results))
	sceneResults := make([]metrics.SceneResult, len(results))
	for i, res := range results {
		episodes[i] = res.out
		sr, err := metrics.DisplacementError(res.out)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to score scene %s", res.out.SceneID)
		}
		sceneResults[i] = sr
	}

	rep := &RunReport{
		RunID:    runID,
		Policy:   r.name,
		Report:   metrics.Aggregate(sceneResults),
		Episodes: episodes,
		Elapsed:  time.Since(start),
	}

	r.log.Info("rollout finished",
		"run_id", runID,
		"mean_ade", rep.Report.MeanADE, "mean_fde", rep.Report.MeanFDE,
		"elapsed", rep.Elapsed)

	return rep, nil
}

// runEpisode simulates one scene to completion with a fresh environment and
// policy.
func (r *Runner) runEpisode(ctx context.Context, runID string, sceneIdx int) (sim.EpisodeOutput, error) {
	env, err := sim.New(r.name, r.scenes, r.cfg,
		sim.WithSimOuts(true),
		sim.WithActionRescale(r.rescale),
		sim.WithRunID(runID),
		sim.WithLogger(r.log),
		sim.WithTrace(r.trace),
	)
	if err != nil {
		return sim.EpisodeOutput{}, errors.Wrap(err, "unable to build environment")
	}

	obs, err := env.Reset(ctx, sceneIdx)
	if err != nil {
		return sim.EpisodeOutput{}, errors.Wrap(err, "unable to reset environment")
	}

	policy := r.policy(env.Scene())
	maxSteps := r.cfg.Rollout.MaxSteps
	if maxSteps <= 0 {
		maxSteps = len(env.Scene().Frames)
	}

	for step := 0; step < maxSteps; step++ {
		action, err := policy.Act(obs)
		if err != nil {
			return sim.EpisodeOutput{}, errors.Wrapf(err, "policy failed at step %d", step)
		}

		var done bool
		var info sim.Info
		obs, _, done, info, err = env.Step(ctx, action)
		if err != nil {
			return sim.EpisodeOutput{}, errors.Wrapf(err, "step %d failed", step)
		}
		if done {
			if len(info.SimOuts) > 0 {
				return info.SimOuts[0], nil
			}
			break
		}
	}

	// Step cap reached before the scene ended.
	out, err := env.Output()
	if err != nil {
		return sim.EpisodeOutput{}, errors.Wrap(err, "unable to collect episode output")
	}
	return out, nil
}
