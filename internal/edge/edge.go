// Package edge detects the local pointer dwelling on a screen edge and
// describes how the virtual cursor returns across it.
package edge

import "fmt"

// Edge is a side of the screen.
type Edge string

const (
	Top    Edge = "top"
	Bottom Edge = "bottom"
	Left   Edge = "left"
	Right  Edge = "right"
)

// ParseEdge validates an edge name.
func ParseEdge(s string) (Edge, error) {
	switch e := Edge(s); e {
	case Top, Bottom, Left, Right:
		return e, nil
	}
	return "", fmt.Errorf("edge: unknown edge %q", s)
}

// Opposite returns the facing edge.
func (e Edge) Opposite() Edge {
	switch e {
	case Top:
		return Bottom
	case Bottom:
		return Top
	case Left:
		return Right
	default:
		return Left
	}
}

// InZone reports whether (x, y) lies within threshold pixels of the edge on a
// w×h screen.
func (e Edge) InZone(x, y, w, h, threshold int) bool {
	switch e {
	case Top:
		return y < threshold
	case Bottom:
		return y >= h-threshold
	case Left:
		return x < threshold
	case Right:
		return x >= w-threshold
	}
	return false
}

// EntryPoint maps the local exit point to the normalized point where the
// cursor appears on the target: leaving through the right edge at height y
// enters the target's left edge at the same relative height.
func (e Edge) EntryPoint(x, y, w, h int) (float64, float64) {
	nx, ny := frac(x, w), frac(y, h)
	switch e {
	case Top:
		return nx, 1
	case Bottom:
		return nx, 0
	case Left:
		return 1, ny
	default:
		return 0, ny
	}
}

func frac(v, size int) float64 {
	if size <= 1 {
		return 0
	}
	f := float64(v) / float64(size-1)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Crossed reports whether a move that left the virtual cursor at the
// normalized (x, y) pushed against this edge of the target.
func (e Edge) Crossed(x, y float64, dx, dy int) bool {
	switch e {
	case Top:
		return y <= 0 && dy < 0
	case Bottom:
		return y >= 1 && dy > 0
	case Left:
		return x <= 0 && dx < 0
	case Right:
		return x >= 1 && dx > 0
	}
	return false
}

// ReturnMethod selects which target edge hands control back.
type ReturnMethod string

const (
	// OppositeEdge returns through the target edge facing the controller,
	// the reverse of the path the cursor entered by.
	OppositeEdge ReturnMethod = "opposite_edge"
	// SameEdge returns through the target edge named like the trigger edge.
	SameEdge ReturnMethod = "same_edge"
)

// ParseReturnMethod validates a return method name.
func ParseReturnMethod(s string) (ReturnMethod, error) {
	switch m := ReturnMethod(s); m {
	case OppositeEdge, SameEdge:
		return m, nil
	}
	return "", fmt.Errorf("edge: unknown return method %q", s)
}

// ReturnEdge is the target edge that returns control for a trigger edge.
func ReturnEdge(trigger Edge, m ReturnMethod) Edge {
	if m == SameEdge {
		return trigger
	}
	return trigger.Opposite()
}
