package model

import (
	"strings"

	"github.com/sells-group/roadgraph/internal/categorize"
)

// Edge is a segment of the road graph between two nodes. Geometry runs from
// the source node to the target node, both included. Direction-dependent
// access lives in Properties.
type Edge[T Float] struct {
	ID         int64                     `json:"id"`
	Source     int64                     `json:"source"`
	Target     int64                     `json:"target"`
	Geometry   []Coord[T]                `json:"geometry"`
	Properties categorize.EdgeProperties `json:"properties"`
}

// Length returns the length of the edge in meters as the sum of the
// distances between consecutive geometry points. Fewer than two points
// yield zero.
func (e Edge[T]) Length() T {
	if len(e.Geometry) < 2 {
		return literal[T](0.0)
	}
	legs := make([]T, 0, len(e.Geometry)-1)
	for i := 1; i < len(e.Geometry); i++ {
		legs = append(legs, Distance(e.Geometry[i-1], e.Geometry[i]))
	}
	return sum(legs)
}

// AsWKT renders the geometry as a LINESTRING literal, longitude first, with
// seven fractional digits per ordinate. Degenerate geometries are rendered
// as-is ("LINESTRING()" for no points).
func (e Edge[T]) AsWKT() string {
	var sb strings.Builder
	sb.WriteString("LINESTRING(")
	for i, c := range e.Geometry {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.String())
	}
	sb.WriteString(")")
	return sb.String()
}
