// Package visualization renders scenes and episode trajectories as images,
// exports lane connectivity as Graphviz DOT, and serves an interactive
// scene browser over HTTP.
package visualization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openmotion/drivesim/internal/scene"
)

// Format specifies the output format for scene rendering.
type Format string

const (
	FormatPNG Format = "png"
	FormatDOT Format = "dot"
)

// RenderDOT produces a Graphviz DOT representation of a scene's lane
// connectivity graph. Nodes are lanes, edges are successor links.
func RenderDOT(sc *scene.Scene) string {
	var b strings.Builder
	b.WriteString("digraph lanes {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=filled, fillcolor=lightgray, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	lanes := make([]scene.Lane, len(sc.Map.Lanes))
	copy(lanes, sc.Map.Lanes)
	sort.Slice(lanes, func(i, j int) bool { return lanes[i].ID < lanes[j].ID })

	for _, l := range lanes {
		b.WriteString(fmt.Sprintf("  %q [tooltip=\"length=%.1fm\"];\n",
			l.ID, l.Centerline.Length()))
	}
	b.WriteString("\n")

	seen := make(map[string]bool)
	for _, l := range lanes {
		for _, succ := range l.Successors {
			key := l.ID + "|" + succ
			if seen[key] {
				continue
			}
			seen[key] = true
			if sc.Map.Lane(succ) == nil {
				// Dangling successor, render dashed so it stands out.
				b.WriteString(fmt.Sprintf("  %q -> %q [style=dashed];\n", l.ID, succ))
				continue
			}
			b.WriteString(fmt.Sprintf("  %q -> %q;\n", l.ID, succ))
		}
	}

	b.WriteString("}\n")
	return b.String()
}
