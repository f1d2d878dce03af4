// Package trigger defines the events that request a change of control mode.
package trigger

import "time"

// Kind identifies the source of a trigger.
type Kind int

const (
	// EdgeEnter fires after the local pointer dwells on the configured edge.
	EdgeEnter Kind = iota
	// HotkeyToggle fires when the configured key combination is pressed.
	HotkeyToggle
	// ReturnEdge fires when the virtual cursor crosses the return edge while remote.
	ReturnEdge
	// Escape is the fixed emergency key and always returns control to the local host.
	Escape
)

func (k Kind) String() string {
	switch k {
	case EdgeEnter:
		return "edge_enter"
	case HotkeyToggle:
		return "hotkey_toggle"
	case ReturnEdge:
		return "return_edge"
	case Escape:
		return "escape"
	default:
		return "unknown"
	}
}

// Priority orders kinds when several arrive together. Higher wins.
func (k Kind) Priority() int {
	switch k {
	case Escape:
		return 3
	case HotkeyToggle:
		return 2
	case ReturnEdge:
		return 1
	default:
		return 0
	}
}

// Event is a single trigger occurrence.
type Event struct {
	Kind Kind
	At   time.Time
	// X and Y are the normalized entry point on the target for EdgeEnter.
	X, Y float64
}

// New returns an event of the given kind stamped with the current time.
func New(kind Kind) Event {
	return Event{Kind: kind, At: time.Now()}
}
