// Package scene defines the dataset model for logged driving scenes: the
// frame-by-frame ego pose, the tracked agents around it, and the vector map
// they drive on.
package scene

import (
	"fmt"

	"github.com/openmotion/drivesim/internal/geom"
)

// DefaultTick is the spacing between consecutive frames in seconds.
const DefaultTick = 0.1

// Default ego dimensions in meters, used when the dataset does not carry them.
const (
	DefaultEgoLength = 4.87
	DefaultEgoWidth  = 1.85
)

// AgentState is one tracked agent observed in a single frame.
type AgentState struct {
	TrackID  int64      `json:"track_id"`
	Pose     geom.Pose  `json:"pose"`
	Length   float64    `json:"length"`
	Width    float64    `json:"width"`
	Velocity geom.Point `json:"velocity,omitempty"`
}

// Footprint returns the agent's oriented bounding box.
func (a AgentState) Footprint() geom.Box {
	return geom.Box{Pose: a.Pose, Length: a.Length, Width: a.Width}
}

// Frame is one timestep of a logged scene. Agents holds only the agents
// tracked at this timestep; tracks appear and disappear between frames.
type Frame struct {
	Index  int          `json:"index"`
	Time   float64      `json:"time"`
	Ego    geom.Pose    `json:"ego"`
	Agents []AgentState `json:"agents,omitempty"`
}

// Lane is a drivable lane segment of the vector map.
type Lane struct {
	ID         string        `json:"id"`
	Centerline geom.Polyline `json:"centerline"`
	LeftBound  geom.Polyline `json:"left_bound,omitempty"`
	RightBound geom.Polyline `json:"right_bound,omitempty"`
	Successors []string      `json:"successors,omitempty"`
}

// Crosswalk is a pedestrian crossing polygon.
type Crosswalk struct {
	ID      string        `json:"id"`
	Polygon geom.Polyline `json:"polygon"`
}

// MapData is the vector map covering a scene.
type MapData struct {
	Lanes      []Lane      `json:"lanes,omitempty"`
	Crosswalks []Crosswalk `json:"crosswalks,omitempty"`
}

// Lane returns the lane with the given ID, or nil.
func (m *MapData) Lane(id string) *Lane {
	for i := range m.Lanes {
		if m.Lanes[i].ID == id {
			return &m.Lanes[i]
		}
	}
	return nil
}

// Scene is one logged driving scene: a frame sequence plus the map.
type Scene struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	Tick      float64 `json:"tick"`
	EgoLength float64 `json:"ego_length"`
	EgoWidth  float64 `json:"ego_width"`
	Frames    []Frame `json:"frames"`
	Map       MapData `json:"map"`
}

// Validate checks the structural invariants a scene must satisfy before it
// can be simulated.
func (s *Scene) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("scene has no ID")
	}
	if len(s.Frames) < 2 {
		return fmt.Errorf("scene %s: need at least 2 frames, have %d", s.ID, len(s.Frames))
	}
	for i, f := range s.Frames {
		if f.Index != i {
			return fmt.Errorf("scene %s: frame %d has index %d", s.ID, i, f.Index)
		}
	}
	for _, l := range s.Map.Lanes {
		if len(l.Centerline) < 2 {
			return fmt.Errorf("scene %s: lane %s centerline has %d points", s.ID, l.ID, len(l.Centerline))
		}
	}
	return nil
}

// ApplyDefaults fills zero-valued tick and ego dimensions with dataset
// defaults. Import paths call this so older dataset dumps stay loadable.
func (s *Scene) ApplyDefaults() {
	if s.Tick <= 0 {
		s.Tick = DefaultTick
	}
	if s.EgoLength <= 0 {
		s.EgoLength = DefaultEgoLength
	}
	if s.EgoWidth <= 0 {
		s.EgoWidth = DefaultEgoWidth
	}
}

// EgoFootprint returns the ego's oriented box at the given pose.
func (s *Scene) EgoFootprint(p geom.Pose) geom.Box {
	return geom.Box{Pose: p, Length: s.EgoLength, Width: s.EgoWidth}
}

// Duration returns the scene length in seconds.
func (s *Scene) Duration() float64 {
	return float64(len(s.Frames)) * s.Tick
}
