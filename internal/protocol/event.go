package protocol

import "fmt"

// MouseEvent is a pointer event produced by capture and consumed by actuation.
type MouseEvent struct {
	Type MessageType

	// X and Y are target-relative in [0,1]; DX and DY are the raw deltas
	// that produced them. Move only.
	X, Y   float64
	DX, DY int

	Button Button
	State  ButtonState

	ScrollX, ScrollY int

	Timestamp int64
	Sequence  uint64
}

// Move returns a move event for the normalized position and raw delta.
func Move(x, y float64, dx, dy int) MouseEvent {
	return MouseEvent{Type: TypeMouseMove, X: x, Y: y, DX: dx, DY: dy, Timestamp: Now()}
}

// Click returns a click event. State selects press, release or both.
func Click(b Button, state ButtonState) MouseEvent {
	return MouseEvent{Type: TypeMouseClick, Button: b, State: state, Timestamp: Now()}
}

// Scroll returns a scroll event.
func Scroll(sx, sy int) MouseEvent {
	return MouseEvent{Type: TypeMouseScroll, ScrollX: sx, ScrollY: sy, Timestamp: Now()}
}

// Message converts the event to its wire form.
func (e MouseEvent) Message() *Message {
	m := &Message{Type: e.Type, Timestamp: e.Timestamp, Sequence: e.Sequence}
	switch e.Type {
	case TypeMouseMove:
		m.X, m.Y, m.DX, m.DY = e.X, e.Y, e.DX, e.DY
	case TypeMouseClick:
		m.Button, m.State = e.Button, e.State
	case TypeMouseScroll:
		m.ScrollX, m.ScrollY = e.ScrollX, e.ScrollY
	}
	return m
}

// MouseEvent extracts the pointer event from a validated message.
func (m *Message) MouseEvent() (MouseEvent, error) {
	if !m.IsMouse() {
		return MouseEvent{}, fmt.Errorf("%w: %s is not a pointer event", ErrMalformed, m.Type)
	}
	e := MouseEvent{Type: m.Type, Timestamp: m.Timestamp, Sequence: m.Sequence}
	switch m.Type {
	case TypeMouseMove:
		e.X, e.Y, e.DX, e.DY = m.X, m.Y, m.DX, m.DY
	case TypeMouseClick:
		e.Button, e.State = m.Button, m.State
	case TypeMouseScroll:
		e.ScrollX, e.ScrollY = m.ScrollX, m.ScrollY
	}
	return e, nil
}

func (e MouseEvent) String() string {
	switch e.Type {
	case TypeMouseMove:
		return fmt.Sprintf("move#%d (%.4f,%.4f) d=(%d,%d)", e.Sequence, e.X, e.Y, e.DX, e.DY)
	case TypeMouseClick:
		return fmt.Sprintf("click#%d %s %s", e.Sequence, e.Button, e.State)
	case TypeMouseScroll:
		return fmt.Sprintf("scroll#%d (%d,%d)", e.Sequence, e.ScrollX, e.ScrollY)
	}
	return fmt.Sprintf("%s#%d", e.Type, e.Sequence)
}
