package model

// Node is a vertex of the road graph.
type Node[T Float] struct {
	ID    int64    `json:"id"`
	Coord Coord[T] `json:"coord"`
	// Uses counts how many way references touch the node. Way extremities
	// count twice. It is maintained by the topology builder.
	Uses int16 `json:"uses"`
}

// NewNode returns a zero-valued node: id 0, coordinate (0, 0), uses 0.
func NewNode[T Float]() Node[T] {
	zero := literal[T](0.0)
	return Node[T]{
		ID:    0,
		Coord: Coord[T]{Lon: zero, Lat: zero},
		Uses:  0,
	}
}
