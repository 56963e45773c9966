package sim

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openmotion/drivesim/internal/config"
	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/scene"
	"github.com/openmotion/drivesim/internal/store"
)

// straightScene builds a scene where the logged ego drives along +X at
// stepLen meters per tick for n frames, on a single straight lane.
func straightScene(id string, n int, stepLen float64) *scene.Scene {
	s := &scene.Scene{ID: id}
	for i := 0; i < n; i++ {
		s.Frames = append(s.Frames, scene.Frame{
			Index: i,
			Time:  float64(i) * scene.DefaultTick,
			Ego:   geom.Pose{X: float64(i) * stepLen, Y: 0, Yaw: 0},
		})
	}
	length := float64(n)*stepLen + 50
	s.Map = scene.MapData{
		Lanes: []scene.Lane{
			{
				ID:         "main",
				Centerline: geom.Polyline{{X: -10, Y: 0}, {X: length, Y: 0}},
				LeftBound:  geom.Polyline{{X: -10, Y: 3}, {X: length, Y: 3}},
				RightBound: geom.Polyline{{X: -10, Y: -3}, {X: length, Y: -3}},
			},
		},
	}
	s.ApplyDefaults()
	return s
}

// withParkedAgent adds an agent standing still at the given position in
// every frame of the scene.
func withParkedAgent(s *scene.Scene, trackID int64, at geom.Point) *scene.Scene {
	for i := range s.Frames {
		s.Frames[i].Agents = append(s.Frames[i].Agents, scene.AgentState{
			TrackID: trackID,
			Pose:    geom.Pose{X: at.X, Y: at.Y},
			Length:  4.5,
			Width:   1.9,
		})
	}
	return s
}

// newTestEnv seeds an isolated SQLite store with the given scenes and
// builds an environment over it.
func newTestEnv(t *testing.T, cfg *config.Config, scenes []*scene.Scene, opts ...Option) *Env {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLiteSceneStore(filepath.Join(t.TempDir(), "scenes.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	for _, sc := range scenes {
		if err := st.PutScene(ctx, sc); err != nil {
			t.Fatalf("failed to seed scene %s: %v", sc.ID, err)
		}
	}

	if cfg == nil {
		cfg = config.Default()
		cfg.Raster.SizePx = 64 // keep test rasters cheap
	}

	env, err := New("test-env", st, cfg, opts...)
	if err != nil {
		t.Fatalf("failed to create env: %v", err)
	}
	return env
}
