package geom

import (
	"math"
	"testing"
)

const eps = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestNormalizeYaw(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "zero", in: 0, want: 0},
		{name: "pi stays pi", in: math.Pi, want: math.Pi},
		{name: "negative pi wraps to pi", in: -math.Pi, want: math.Pi},
		{name: "three pi wraps to pi", in: 3 * math.Pi, want: math.Pi},
		{name: "slightly over pi goes negative", in: math.Pi + 0.5, want: -math.Pi + 0.5},
		{name: "full turn", in: 2 * math.Pi, want: 0},
		{name: "negative full turn", in: -2 * math.Pi, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeYaw(tt.in)
			if !almostEqual(got, tt.want) {
				t.Errorf("NormalizeYaw(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if got <= -math.Pi || got > math.Pi+eps {
				t.Errorf("NormalizeYaw(%v) = %v outside (-pi, pi]", tt.in, got)
			}
		})
	}
}

func TestPoseApplyToLocalRoundTrip(t *testing.T) {
	poses := []Pose{
		{},
		{X: 10, Y: -4, Yaw: 0.3},
		{X: -120.5, Y: 88.25, Yaw: -2.9},
		{X: 0, Y: 0, Yaw: math.Pi},
	}
	points := []Point{{}, {1, 0}, {0, 1}, {-3.5, 7.25}, {1000, -1000}}

	for _, pose := range poses {
		for _, pt := range points {
			world := pose.Apply(pt)
			back := pose.ToLocal(world)
			if !almostEqual(back.X, pt.X) || !almostEqual(back.Y, pt.Y) {
				t.Errorf("pose %+v: round trip of %+v gave %+v", pose, pt, back)
			}
		}
	}
}

func TestPoseApply(t *testing.T) {
	// Facing +Y, one meter forward in the local frame is one meter +Y in the world.
	pose := Pose{X: 2, Y: 3, Yaw: math.Pi / 2}
	got := pose.Apply(Point{1, 0})
	if !almostEqual(got.X, 2) || !almostEqual(got.Y, 4) {
		t.Errorf("Apply = %+v, want (2, 4)", got)
	}
}

func TestPoseCompose(t *testing.T) {
	pose := Pose{X: 0, Y: 0, Yaw: math.Pi / 2}
	next := pose.Compose(2, 0, math.Pi/2)
	if !almostEqual(next.X, 0) || !almostEqual(next.Y, 2) {
		t.Errorf("Compose position = (%v, %v), want (0, 2)", next.X, next.Y)
	}
	if !almostEqual(next.Yaw, math.Pi) {
		t.Errorf("Compose yaw = %v, want pi", next.Yaw)
	}
}

func TestLerp(t *testing.T) {
	a := Pose{X: 0, Y: 0, Yaw: 0}
	b := Pose{X: 10, Y: 20, Yaw: math.Pi / 2}

	mid := Lerp(a, b, 0.5)
	if !almostEqual(mid.X, 5) || !almostEqual(mid.Y, 10) || !almostEqual(mid.Yaw, math.Pi/4) {
		t.Errorf("Lerp midpoint = %+v", mid)
	}

	// t is clamped.
	if got := Lerp(a, b, -1); got != a {
		t.Errorf("Lerp(-1) = %+v, want %+v", got, a)
	}
	if got := Lerp(a, b, 2); !almostEqual(got.X, b.X) || !almostEqual(got.Yaw, b.Yaw) {
		t.Errorf("Lerp(2) = %+v, want %+v", got, b)
	}
}

func TestPolylineDistance(t *testing.T) {
	line := Polyline{{0, 0}, {10, 0}, {10, 10}}
	tests := []struct {
		name string
		p    Point
		want float64
	}{
		{name: "on the line", p: Point{5, 0}, want: 0},
		{name: "above first segment", p: Point{5, 3}, want: 3},
		{name: "beyond the start", p: Point{-4, 0}, want: 4},
		{name: "right of second segment", p: Point{13, 5}, want: 3},
		{name: "past the end", p: Point{10, 15}, want: 5},
		{name: "near the corner", p: Point{13, -4}, want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := line.Distance(tt.p); !almostEqual(got, tt.want) {
				t.Errorf("Distance(%+v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}

	if !math.IsInf(Polyline{}.Distance(Point{1, 1}), 1) {
		t.Error("empty polyline should be infinitely far")
	}
}

func TestPolylineProject(t *testing.T) {
	line := Polyline{{0, 0}, {10, 0}, {10, 10}}

	arc, closest := line.Project(Point{10, 4.5})
	if !almostEqual(arc, 14.5) {
		t.Errorf("arc = %v, want 14.5", arc)
	}
	if !almostEqual(closest.X, 10) || !almostEqual(closest.Y, 4.5) {
		t.Errorf("closest = %+v", closest)
	}

	if got := line.Length(); !almostEqual(got, 20) {
		t.Errorf("Length = %v, want 20", got)
	}
}

func TestBoxCorners(t *testing.T) {
	b := Box{Pose: Pose{X: 1, Y: 2, Yaw: 0}, Length: 4, Width: 2}
	c := b.Corners()
	want := [4]Point{{3, 3}, {-1, 3}, {-1, 1}, {3, 1}}
	for i := range c {
		if !almostEqual(c[i].X, want[i].X) || !almostEqual(c[i].Y, want[i].Y) {
			t.Errorf("corner %d = %+v, want %+v", i, c[i], want[i])
		}
	}
}

func TestBoxIntersects(t *testing.T) {
	base := Box{Pose: Pose{}, Length: 4, Width: 2}
	tests := []struct {
		name  string
		other Box
		want  bool
	}{
		{name: "identical", other: base, want: true},
		{name: "clear ahead", other: Box{Pose: Pose{X: 10}, Length: 4, Width: 2}, want: false},
		{name: "overlapping ahead", other: Box{Pose: Pose{X: 3}, Length: 4, Width: 2}, want: true},
		{name: "touching edges", other: Box{Pose: Pose{X: 4}, Length: 4, Width: 2}, want: false},
		{name: "rotated through the side", other: Box{Pose: Pose{X: 0, Y: 1.5, Yaw: math.Pi / 2}, Length: 4, Width: 2}, want: true},
		{name: "rotated but clear", other: Box{Pose: Pose{X: 0, Y: 4, Yaw: math.Pi / 2}, Length: 4, Width: 2}, want: false},
		{name: "diagonal near miss", other: Box{Pose: Pose{X: 4, Y: 2.5, Yaw: math.Pi / 4}, Length: 4, Width: 2}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Intersects(tt.other); got != tt.want {
				t.Errorf("Intersects = %v, want %v", got, tt.want)
			}
			// Symmetry.
			if got := tt.other.Intersects(base); got != tt.want {
				t.Errorf("reverse Intersects = %v, want %v", got, tt.want)
			}
		})
	}
}
