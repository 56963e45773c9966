package geom

import "math"

// Box is an oriented rectangle: a vehicle footprint. Length runs along the
// pose heading, width across it.
type Box struct {
	Pose   Pose
	Length float64
	Width  float64
}

// Corners returns the four corners of the box in the world frame, in
// counter-clockwise order starting from front-left.
func (b Box) Corners() [4]Point {
	hl := b.Length / 2
	hw := b.Width / 2
	return [4]Point{
		b.Pose.Apply(Point{hl, hw}),
		b.Pose.Apply(Point{-hl, hw}),
		b.Pose.Apply(Point{-hl, -hw}),
		b.Pose.Apply(Point{hl, -hw}),
	}
}

// Intersects reports whether two oriented boxes overlap, using the
// separating-axis test over both boxes' edge normals. Boxes that merely touch
// at an edge are not considered intersecting.
func (b Box) Intersects(o Box) bool {
	ca := b.Corners()
	cb := o.Corners()
	axes := [4]Point{
		axisOf(ca[0], ca[1]),
		axisOf(ca[1], ca[2]),
		axisOf(cb[0], cb[1]),
		axisOf(cb[1], cb[2]),
	}
	for _, axis := range axes {
		minA, maxA := project(ca, axis)
		minB, maxB := project(cb, axis)
		if maxA <= minB || maxB <= minA {
			return false
		}
	}
	return true
}

func axisOf(a, b Point) Point {
	edge := b.Sub(a)
	return Point{-edge.Y, edge.X}
}

func project(corners [4]Point, axis Point) (min, max float64) {
	min = math.Inf(1)
	max = math.Inf(-1)
	for _, c := range corners {
		d := c.Dot(axis)
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}
