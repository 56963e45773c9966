package sim

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmotion/drivesim/internal/config"
	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/logging"
	"github.com/openmotion/drivesim/internal/scene"
	"github.com/openmotion/drivesim/internal/store"
)

func TestStepBeforeReset(t *testing.T) {
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 10, 1)})

	_, _, _, _, err := env.Step(context.Background(), Action{DX: 1})
	if !errors.Is(err, ErrNotReset) {
		t.Errorf("Step before Reset = %v, want ErrNotReset", err)
	}
}

func TestResetObservation(t *testing.T) {
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 10, 1)})

	obs, err := env.Reset(context.Background(), 0)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if obs.FrameIndex != 0 {
		t.Errorf("FrameIndex = %d, want 0", obs.FrameIndex)
	}
	if obs.EgoPose != (geom.Pose{}) {
		t.Errorf("EgoPose = %+v, want logged start pose", obs.EgoPose)
	}
	if want := 3 * 64 * 64; len(obs.Image) != want {
		t.Errorf("image length = %d, want %d", len(obs.Image), want)
	}
	if obs.SizePx != 64 || obs.Channels != 3 {
		t.Errorf("raster shape = %dpx x%d channels", obs.SizePx, obs.Channels)
	}
}

func TestResetBadIndex(t *testing.T) {
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 10, 1)})

	_, err := env.Reset(context.Background(), 5)
	if !errors.Is(err, store.ErrSceneNotFound) {
		t.Errorf("Reset(5) = %v, want ErrSceneNotFound", err)
	}
}

func TestLogReplayRunsToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 20, 1)}, WithSimOuts(true))

	if _, err := env.Reset(ctx, 0); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	// Driving exactly the logged motion: 1 m forward per tick.
	var done bool
	var info Info
	steps := 0
	for !done {
		var err error
		var rew float64
		_, rew, done, info, err = env.Step(ctx, Action{DX: 1})
		if err != nil {
			t.Fatalf("Step %d: %v", steps, err)
		}
		steps++
		if math.Abs(rew) > 1e-6 {
			t.Errorf("step %d reward = %v, want ~0 for perfect replay", steps, rew)
		}
		if steps > 100 {
			t.Fatal("episode never finished")
		}
	}

	if steps != 19 {
		t.Errorf("episode length = %d steps, want 19", steps)
	}
	if len(info.SimOuts) != 1 {
		t.Fatalf("SimOuts = %d records, want 1", len(info.SimOuts))
	}
	out := info.SimOuts[0]
	if out.SceneID != "s" || len(out.Steps) != 19 {
		t.Errorf("episode output = scene %s with %d steps", out.SceneID, len(out.Steps))
	}
	if out.Crashed() {
		t.Error("perfect replay should not crash")
	}
}

func TestSimOutsOnlyOnFinalStep(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 10, 1)}, WithSimOuts(true))

	if _, err := env.Reset(ctx, 0); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	_, _, done, info, err := env.Step(ctx, Action{DX: 1})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if done {
		t.Fatal("episode finished too early")
	}
	if len(info.SimOuts) != 0 {
		t.Errorf("SimOuts on intermediate step = %d records, want 0", len(info.SimOuts))
	}
}

func TestSimOutsDisabled(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 3, 1)})

	if _, err := env.Reset(ctx, 0); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	var done bool
	var info Info
	for !done {
		var err error
		_, _, done, info, err = env.Step(ctx, Action{DX: 1})
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	if len(info.SimOuts) != 0 {
		t.Errorf("SimOuts without WithSimOuts = %d records, want 0", len(info.SimOuts))
	}

	// The record is still reachable through Output.
	out, err := env.Output()
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if len(out.Steps) != 2 {
		t.Errorf("Output steps = %d, want 2", len(out.Steps))
	}
}

func TestStepAfterDone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 2, 1)})

	if _, err := env.Reset(ctx, 0); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, _, done, _, err := env.Step(ctx, Action{DX: 1}); err != nil || !done {
		t.Fatalf("Step = done %v, err %v; want done", done, err)
	}

	if _, _, _, _, err := env.Step(ctx, Action{DX: 1}); !errors.Is(err, ErrEpisodeDone) {
		t.Errorf("Step after done = %v, want ErrEpisodeDone", err)
	}

	// Reset clears the done state.
	if _, err := env.Reset(ctx, 0); err != nil {
		t.Fatalf("Reset after done: %v", err)
	}
	if _, _, _, _, err := env.Step(ctx, Action{DX: 1}); err != nil {
		t.Errorf("Step after re-Reset: %v", err)
	}
}

func TestCollisionTerminates(t *testing.T) {
	ctx := context.Background()
	sc := withParkedAgent(straightScene("s", 50, 1), 1, geom.Point{X: 10, Y: 0})
	env := newTestEnv(t, nil, []*scene.Scene{sc}, WithSimOuts(true))

	if _, err := env.Reset(ctx, 0); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	var done bool
	var info Info
	var rew float64
	steps := 0
	for !done {
		var err error
		_, rew, done, info, err = env.Step(ctx, Action{DX: 1})
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		steps++
		if steps > 50 {
			t.Fatal("collision never terminated the episode")
		}
	}

	// Ego (4.87 m long) driving at the parked car (4.5 m long at x=10)
	// makes contact before reaching it, well before the scene ends.
	if steps >= 49 {
		t.Errorf("terminated at step %d, expected early collision stop", steps)
	}
	if rew > -25 {
		t.Errorf("final reward = %v, want collision penalty applied", rew)
	}
	if len(info.SimOuts) != 1 || !info.SimOuts[0].Crashed() {
		t.Error("episode output should record the collision")
	}
}

func TestOffRouteTerminates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 100, 1)})

	if _, err := env.Reset(ctx, 0); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	// Drive straight off the road sideways.
	var done bool
	steps := 0
	for !done {
		var err error
		_, _, done, _, err = env.Step(ctx, Action{DY: 1})
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		steps++
		if steps > 99 {
			t.Fatal("never went off-route")
		}
	}

	// Off-route threshold is 4 m at 1 m per tick.
	if steps < 4 || steps > 6 {
		t.Errorf("off-route stop after %d steps, want about 5", steps)
	}
}

func TestActionRescale(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Raster.SizePx = 64
	cfg.Sim.MaxStepDistance = 2.0
	cfg.Sim.MaxStepYaw = 0.5
	// Disable safety stops so the trajectory runs free.
	cfg.Reward.StopOnOffRoute = false

	env := newTestEnv(t, cfg, []*scene.Scene{straightScene("s", 10, 1)}, WithActionRescale(true))

	if _, err := env.Reset(ctx, 0); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	// A saturated action (well beyond 1) is clamped then scaled.
	obs, _, _, _, err := env.Step(ctx, Action{DX: 5, DY: -0.5, DYaw: 10})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if math.Abs(obs.EgoPose.X-2.0) > 1e-9 || math.Abs(obs.EgoPose.Y-(-1.0)) > 1e-9 {
		t.Errorf("rescaled pose = %+v, want (2, -1)", obs.EgoPose)
	}
	if math.Abs(obs.EgoPose.Yaw-0.5) > 1e-9 {
		t.Errorf("rescaled yaw = %v, want 0.5", obs.EgoPose.Yaw)
	}
}

func TestRawActionWithoutRescale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 10, 1)})

	if _, err := env.Reset(ctx, 0); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	obs, _, _, _, err := env.Step(ctx, Action{DX: 5})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if math.Abs(obs.EgoPose.X-5) > 1e-9 {
		t.Errorf("raw action pose X = %v, want 5", obs.EgoPose.X)
	}
}

func TestDeterminism(t *testing.T) {
	ctx := context.Background()
	sc := withParkedAgent(straightScene("s", 30, 1), 1, geom.Point{X: 200, Y: 0})

	run := func() EpisodeOutput {
		env := newTestEnv(t, nil, []*scene.Scene{sc}, WithSimOuts(true))
		if _, err := env.Reset(ctx, 0); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		var done bool
		var info Info
		for i := 0; !done; i++ {
			var err error
			_, _, done, info, err = env.Step(ctx, Action{DX: 1, DY: 0.01 * float64(i%3)})
			if err != nil {
				t.Fatalf("Step: %v", err)
			}
		}
		return info.SimOuts[0]
	}

	a := run()
	b := run()
	if len(a.Steps) != len(b.Steps) {
		t.Fatalf("step counts differ: %d vs %d", len(a.Steps), len(b.Steps))
	}
	for i := range a.Steps {
		if a.Steps[i] != b.Steps[i] {
			t.Fatalf("step %d differs: %+v vs %+v", i, a.Steps[i], b.Steps[i])
		}
	}
}

func TestContextCancellation(t *testing.T) {
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 10, 1)})

	if _, err := env.Reset(context.Background(), 0); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, _, _, err := env.Step(ctx, Action{DX: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("Step with cancelled context = %v, want context.Canceled", err)
	}
}

func TestNewFromConfigPath(t *testing.T) {
	ctx := context.Background()

	st, err := store.NewSQLiteSceneStore(filepath.Join(t.TempDir(), "scenes.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.PutScene(ctx, straightScene("s", 10, 1)); err != nil {
		t.Fatalf("failed to seed scene: %v", err)
	}

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("raster:\n  size_px: 32\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	env, err := NewFromConfigPath("cfg-env", cfgPath, st)
	if err != nil {
		t.Fatalf("NewFromConfigPath: %v", err)
	}

	obs, err := env.Reset(ctx, 0)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if obs.SizePx != 32 {
		t.Errorf("observation size = %d, want 32 from config file", obs.SizePx)
	}

	if _, err := NewFromConfigPath("bad", cfgPath+"\x00", st); err == nil {
		t.Error("expected error for unreadable config path")
	}
}

func TestStepTraceRouteProgress(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tracer := logging.NewTraceLogger(dir, "trace")
	if tracer == nil {
		t.Fatal("failed to create trace logger")
	}
	env := newTestEnv(t, nil, []*scene.Scene{straightScene("s", 10, 1)}, WithTrace(tracer))

	if _, err := env.Reset(ctx, 0); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, _, _, _, err := env.Step(ctx, Action{DX: 1}); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	tracer.Close()

	data, err := os.ReadFile(filepath.Join(dir, "trace.jsonl"))
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}

	// The route polyline starts 10 m behind the ego, so after k forward
	// steps the arc-length progress is 10+k.
	var progresses []float64
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad trace line %q: %v", line, err)
		}
		if entry["event"] != "step" {
			continue
		}
		p, ok := entry["route_progress"].(float64)
		if !ok {
			t.Fatalf("step trace entry missing route_progress: %s", line)
		}
		progresses = append(progresses, p)
	}
	if len(progresses) != 3 {
		t.Fatalf("trace has %d step entries, want 3", len(progresses))
	}
	for i, p := range progresses {
		if want := 10 + float64(i+1); math.Abs(p-want) > 1e-6 {
			t.Errorf("step %d route_progress = %v, want %v", i+1, p, want)
		}
	}
}
