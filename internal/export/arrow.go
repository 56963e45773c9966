// Package export writes episode outputs to Arrow IPC files for downstream
// analysis, one record batch per episode, and reads them back for offline
// metric evaluation.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/reward"
	"github.com/openmotion/drivesim/internal/sim"
)

// EpisodeSchema is the columnar layout of exported episodes: one row per
// simulated step.
var EpisodeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "scene_id", Type: arrow.BinaryTypes.String},
	{Name: "run_id", Type: arrow.BinaryTypes.String},
	{Name: "frame_index", Type: arrow.PrimitiveTypes.Int32},
	{Name: "sim_x", Type: arrow.PrimitiveTypes.Float64},
	{Name: "sim_y", Type: arrow.PrimitiveTypes.Float64},
	{Name: "sim_yaw", Type: arrow.PrimitiveTypes.Float64},
	{Name: "log_x", Type: arrow.PrimitiveTypes.Float64},
	{Name: "log_y", Type: arrow.PrimitiveTypes.Float64},
	{Name: "log_yaw", Type: arrow.PrimitiveTypes.Float64},
	{Name: "reward", Type: arrow.PrimitiveTypes.Float64},
	{Name: "collision", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "off_route", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// WriteEpisodes writes the episode outputs to w as an Arrow IPC file with
// one record batch per episode.
func WriteEpisodes(w io.WriteSeeker, outs []sim.EpisodeOutput) error {
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(EpisodeSchema))
	if err != nil {
		return fmt.Errorf("failed to create Arrow writer: %w", err)
	}

	builder := array.NewRecordBuilder(memory.DefaultAllocator, EpisodeSchema)
	defer builder.Release()

	for _, out := range outs {
		sceneID := builder.Field(0).(*array.StringBuilder)
		runID := builder.Field(1).(*array.StringBuilder)
		frameIndex := builder.Field(2).(*array.Int32Builder)
		simX := builder.Field(3).(*array.Float64Builder)
		simY := builder.Field(4).(*array.Float64Builder)
		simYaw := builder.Field(5).(*array.Float64Builder)
		logX := builder.Field(6).(*array.Float64Builder)
		logY := builder.Field(7).(*array.Float64Builder)
		logYaw := builder.Field(8).(*array.Float64Builder)
		rew := builder.Field(9).(*array.Float64Builder)
		collision := builder.Field(10).(*array.BooleanBuilder)
		offRoute := builder.Field(11).(*array.BooleanBuilder)

		for _, s := range out.Steps {
			sceneID.Append(out.SceneID)
			runID.Append(out.RunID)
			frameIndex.Append(int32(s.FrameIndex))
			simX.Append(s.SimPose.X)
			simY.Append(s.SimPose.Y)
			simYaw.Append(s.SimPose.Yaw)
			logX.Append(s.LogPose.X)
			logY.Append(s.LogPose.Y)
			logYaw.Append(s.LogPose.Yaw)
			rew.Append(s.Reward)
			collision.Append(s.Verdicts.Collision)
			offRoute.Append(s.Verdicts.OffRoute)
		}

		rec := builder.NewRecord()
		err := fw.Write(rec)
		rec.Release()
		if err != nil {
			return fmt.Errorf("failed to write episode %s: %w", out.SceneID, err)
		}
	}

	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to finalize Arrow file: %w", err)
	}
	return nil
}

// WriteEpisodesFile writes the episode outputs to the Arrow IPC file at path.
func WriteEpisodesFile(path string, outs []sim.EpisodeOutput) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteEpisodes(f, outs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadEpisodes reads an Arrow IPC episode file back into episode outputs,
// one per record batch. Only the pose, reward and verdict columns survive
// the round trip; actions and route distances are not exported.
func ReadEpisodes(r ipc.ReadAtSeeker) ([]sim.EpisodeOutput, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("failed to open Arrow file: %w", err)
	}
	defer fr.Close()

	var outs []sim.EpisodeOutput
	for {
		rec, err := fr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record batch: %w", err)
		}
		out, err := recordToEpisode(rec)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}

// ReadEpisodesFile reads the Arrow IPC episode file at path.
func ReadEpisodesFile(path string) ([]sim.EpisodeOutput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadEpisodes(f)
}

func recordToEpisode(rec arrow.Record) (sim.EpisodeOutput, error) {
	if !rec.Schema().Equal(EpisodeSchema) {
		return sim.EpisodeOutput{}, fmt.Errorf("unexpected schema: %v", rec.Schema())
	}

	sceneID := rec.Column(0).(*array.String)
	runID := rec.Column(1).(*array.String)
	frameIndex := rec.Column(2).(*array.Int32)
	simX := rec.Column(3).(*array.Float64)
	simY := rec.Column(4).(*array.Float64)
	simYaw := rec.Column(5).(*array.Float64)
	logX := rec.Column(6).(*array.Float64)
	logY := rec.Column(7).(*array.Float64)
	logYaw := rec.Column(8).(*array.Float64)
	rew := rec.Column(9).(*array.Float64)
	collision := rec.Column(10).(*array.Boolean)
	offRoute := rec.Column(11).(*array.Boolean)

	out := sim.EpisodeOutput{}
	n := int(rec.NumRows())
	for i := 0; i < n; i++ {
		if i == 0 {
			out.SceneID = sceneID.Value(0)
			out.RunID = runID.Value(0)
		}
		out.Steps = append(out.Steps, sim.StepRecord{
			FrameIndex: int(frameIndex.Value(i)),
			SimPose:    geom.Pose{X: simX.Value(i), Y: simY.Value(i), Yaw: simYaw.Value(i)},
			LogPose:    geom.Pose{X: logX.Value(i), Y: logY.Value(i), Yaw: logYaw.Value(i)},
			Reward:     rew.Value(i),
			Verdicts: reward.Verdicts{
				Collision: collision.Value(i),
				OffRoute:  offRoute.Value(i),
			},
		})
	}
	return out, nil
}
