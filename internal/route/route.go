// Package route plans the ego's intended path through the lane graph and
// answers how far a position has strayed from it.
package route

import (
	"errors"
	"fmt"
	"math"

	"github.com/dominikbraun/graph"

	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/scene"
)

// ErrNoRoute is returned when no lane path connects start to goal.
var ErrNoRoute = errors.New("no route between start and goal")

// Route is a planned path: the ordered lane IDs and their concatenated
// centerline.
type Route struct {
	LaneIDs  []string
	Polyline geom.Polyline
}

// Length returns the route arc length in meters.
func (r *Route) Length() float64 { return r.Polyline.Length() }

// Distance returns the lateral distance from p to the route polyline.
func (r *Route) Distance(p geom.Point) float64 { return r.Polyline.Distance(p) }

// Progress returns the arc-length position along the route of the point
// closest to p.
func (r *Route) Progress(p geom.Point) float64 {
	arc, _ := r.Polyline.Project(p)
	return arc
}

// Planner plans routes over a scene's lane graph. Build one per scene; the
// graph is immutable after construction.
type Planner struct {
	m *scene.MapData
	g graph.Graph[string, string]
}

// NewPlanner builds the directed, weighted lane graph from successor links.
// Edge weights are the successor lane's centerline length, so shortest paths
// minimize driven distance. Successor references to unknown lanes are ignored.
func NewPlanner(m *scene.MapData) (*Planner, error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.Weighted())

	for _, l := range m.Lanes {
		if err := g.AddVertex(l.ID); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, fmt.Errorf("failed to add lane %s: %w", l.ID, err)
		}
	}
	for _, l := range m.Lanes {
		for _, succ := range l.Successors {
			next := m.Lane(succ)
			if next == nil {
				continue
			}
			// dominikbraun/graph stores integer weights; centimeter
			// granularity is plenty for lane lengths.
			w := int(next.Centerline.Length() * 100)
			err := g.AddEdge(l.ID, succ, graph.EdgeWeight(w))
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("failed to link lane %s -> %s: %w", l.ID, succ, err)
			}
		}
	}

	return &Planner{m: m, g: g}, nil
}

// NearestLane returns the ID of the lane whose centerline is closest to p.
func (p *Planner) NearestLane(pt geom.Point) (string, error) {
	if len(p.m.Lanes) == 0 {
		return "", errors.New("map has no lanes")
	}
	best := ""
	bestDist := math.Inf(1)
	for _, l := range p.m.Lanes {
		if d := l.Centerline.Distance(pt); d < bestDist {
			bestDist = d
			best = l.ID
		}
	}
	return best, nil
}

// Plan returns the shortest lane route from the lane nearest start to the
// lane nearest goal, with the concatenated centerline as its polyline.
func (p *Planner) Plan(start, goal geom.Point) (*Route, error) {
	from, err := p.NearestLane(start)
	if err != nil {
		return nil, err
	}
	to, err := p.NearestLane(goal)
	if err != nil {
		return nil, err
	}

	var laneIDs []string
	if from == to {
		laneIDs = []string{from}
	} else {
		path, err := graph.ShortestPath(p.g, from, to)
		if err != nil {
			return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, from, to)
		}
		laneIDs = path
	}

	route := &Route{LaneIDs: laneIDs}
	for _, id := range laneIDs {
		lane := p.m.Lane(id)
		if lane == nil {
			return nil, fmt.Errorf("route references unknown lane %s", id)
		}
		pl := lane.Centerline
		// Consecutive lanes share their junction point; drop the duplicate.
		if len(route.Polyline) > 0 && len(pl) > 0 && route.Polyline[len(route.Polyline)-1] == pl[0] {
			pl = pl[1:]
		}
		route.Polyline = append(route.Polyline, pl...)
	}
	return route, nil
}
