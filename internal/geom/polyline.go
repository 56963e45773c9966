package geom

import "math"

// Polyline is an ordered chain of world-frame points.
type Polyline []Point

// Length returns the total arc length of the polyline.
func (pl Polyline) Length() float64 {
	var total float64
	for i := 1; i < len(pl); i++ {
		total += pl[i].Dist(pl[i-1])
	}
	return total
}

// closestOnSegment returns the point on segment [a, b] closest to p.
func closestOnSegment(p, a, b Point) Point {
	ab := b.Sub(a)
	den := ab.Dot(ab)
	if den == 0 {
		return a
	}
	t := p.Sub(a).Dot(ab) / den
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return a.Add(ab.Scale(t))
}

// Distance returns the shortest distance from p to the polyline. An empty
// polyline is infinitely far away.
func (pl Polyline) Distance(p Point) float64 {
	if len(pl) == 0 {
		return math.Inf(1)
	}
	if len(pl) == 1 {
		return p.Dist(pl[0])
	}
	best := math.Inf(1)
	for i := 1; i < len(pl); i++ {
		d := p.Dist(closestOnSegment(p, pl[i-1], pl[i]))
		if d < best {
			best = d
		}
	}
	return best
}

// Project returns the arc-length position along the polyline of the point
// closest to p, together with the closest point itself.
func (pl Polyline) Project(p Point) (arc float64, closest Point) {
	if len(pl) == 0 {
		return 0, Point{}
	}
	if len(pl) == 1 {
		return 0, pl[0]
	}
	best := math.Inf(1)
	var walked float64
	for i := 1; i < len(pl); i++ {
		c := closestOnSegment(p, pl[i-1], pl[i])
		if d := p.Dist(c); d < best {
			best = d
			arc = walked + pl[i-1].Dist(c)
			closest = c
		}
		walked += pl[i].Dist(pl[i-1])
	}
	return arc, closest
}
