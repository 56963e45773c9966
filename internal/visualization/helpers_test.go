package visualization

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmotion/drivesim/internal/config"
	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/raster"
	"github.com/openmotion/drivesim/internal/scene"
	"github.com/openmotion/drivesim/internal/sim"
	"github.com/openmotion/drivesim/internal/store"
)

// testScene builds a short scene on two connected lanes with the logged ego
// driving along +X.
func testScene(id string, n int) *scene.Scene {
	s := &scene.Scene{ID: id}
	for i := 0; i < n; i++ {
		s.Frames = append(s.Frames, scene.Frame{
			Index: i,
			Time:  float64(i) * scene.DefaultTick,
			Ego:   geom.Pose{X: float64(i), Y: 0, Yaw: 0},
		})
	}
	s.Map = scene.MapData{
		Lanes: []scene.Lane{
			{
				ID:         "a",
				Centerline: geom.Polyline{{X: -10, Y: 0}, {X: 30, Y: 0}},
				LeftBound:  geom.Polyline{{X: -10, Y: 3}, {X: 30, Y: 3}},
				RightBound: geom.Polyline{{X: -10, Y: -3}, {X: 30, Y: -3}},
				Successors: []string{"b"},
			},
			{
				ID:         "b",
				Centerline: geom.Polyline{{X: 30, Y: 0}, {X: 80, Y: 0}},
				LeftBound:  geom.Polyline{{X: 30, Y: 3}, {X: 80, Y: 3}},
				RightBound: geom.Polyline{{X: 30, Y: -3}, {X: 80, Y: -3}},
			},
		},
	}
	s.ApplyDefaults()
	return s
}

// replayEpisode builds an episode output whose simulated poses equal the
// logged poses of the scene.
func replayEpisode(s *scene.Scene) sim.EpisodeOutput {
	out := sim.EpisodeOutput{SceneID: s.ID, RunID: "test-run"}
	for _, f := range s.Frames[1:] {
		out.Steps = append(out.Steps, sim.StepRecord{
			FrameIndex: f.Index,
			SimPose:    f.Ego,
			LogPose:    f.Ego,
		})
	}
	return out
}

// setupTestStore seeds an isolated SQLite store with the given scenes.
func setupTestStore(t *testing.T, scenes ...*scene.Scene) store.SceneStore {
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
	return st
}

// newTestRenderer builds a small renderer to keep test rasters cheap.
func newTestRenderer(t *testing.T) *raster.Renderer {
	t.Helper()
	cfg := config.Default().Raster
	cfg.SizePx = 64
	ren, err := raster.New(cfg)
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	return ren
}

// waitForServer polls the server until it's ready or the timeout is reached.
func waitForServer(t *testing.T, srv *Server, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		addr := srv.Addr()
		if addr == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start within timeout")
}
