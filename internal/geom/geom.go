// Package geom provides the 2D primitives used throughout the simulator:
// points and poses in the world frame, frame transforms, and polyline math.
//
// Conventions: distances are meters, angles are radians, yaw is measured
// counter-clockwise from the world +X axis and normalized to (-pi, pi].
package geom

import "math"

// Point is a position in the world frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale returns p scaled by s.
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

// Dot returns the dot product of p and q.
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Norm returns the Euclidean length of p.
func (p Point) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return p.Sub(q).Norm() }

// Pose is a position plus heading in the world frame.
type Pose struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"`
}

// Position returns the translational part of the pose.
func (p Pose) Position() Point { return Point{p.X, p.Y} }

// NormalizeYaw wraps a into (-pi, pi].
func NormalizeYaw(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// Apply maps a point expressed in the pose's local frame into the world frame.
func (p Pose) Apply(local Point) Point {
	sin, cos := math.Sincos(p.Yaw)
	return Point{
		X: p.X + local.X*cos - local.Y*sin,
		Y: p.Y + local.X*sin + local.Y*cos,
	}
}

// ToLocal maps a world-frame point into the pose's local frame. It is the
// inverse of Apply.
func (p Pose) ToLocal(world Point) Point {
	sin, cos := math.Sincos(p.Yaw)
	dx := world.X - p.X
	dy := world.Y - p.Y
	return Point{
		X: dx*cos + dy*sin,
		Y: -dx*sin + dy*cos,
	}
}

// Compose applies a local-frame motion (dx, dy, dyaw) to the pose and returns
// the resulting world pose. This is how per-tick ego displacements are folded
// onto the vehicle state.
func (p Pose) Compose(dx, dy, dyaw float64) Pose {
	moved := p.Apply(Point{dx, dy})
	return Pose{
		X:   moved.X,
		Y:   moved.Y,
		Yaw: NormalizeYaw(p.Yaw + dyaw),
	}
}

// Lerp linearly interpolates between poses a and b. Yaw is interpolated along
// the shorter arc. t is clamped to [0, 1].
func Lerp(a, b Pose, t float64) Pose {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	dyaw := NormalizeYaw(b.Yaw - a.Yaw)
	return Pose{
		X:   a.X + (b.X-a.X)*t,
		Y:   a.Y + (b.Y-a.Y)*t,
		Yaw: NormalizeYaw(a.Yaw + dyaw*t),
	}
}
