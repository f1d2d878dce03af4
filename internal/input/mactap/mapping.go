// Package mactap captures the macOS pointer during remote mode with an
// active Quartz event tap: the cursor is detached from the mouse and every
// pointer event is reported and swallowed.
package mactap

import (
	"zedlink/internal/input"
	"zedlink/internal/protocol"
)

// CGEventType values
const (
	evLeftMouseDown     = 1
	evLeftMouseUp       = 2
	evRightMouseDown    = 3
	evRightMouseUp      = 4
	evMouseMoved        = 5
	evLeftMouseDragged  = 6
	evRightMouseDragged = 7
	evScrollWheel       = 22
	evOtherMouseDown    = 25
	evOtherMouseUp      = 26
	evOtherMouseDragged = 27
)

// kCGMouseEventButtonNumber of the middle button
const middleButtonNumber = 2

// fields are the integer event fields the mapping reads.
type fields struct {
	DeltaX, DeltaY   int64
	ButtonNumber     int64
	ScrollY, ScrollX int64
}

// mapEvent maps one tapped event. swallow reports whether the tap must
// drop it; ok whether ev is set.
func mapEvent(typ uint32, f fields) (ev input.InputEvent, ok, swallow bool) {
	switch typ {
	case evMouseMoved, evLeftMouseDragged, evRightMouseDragged, evOtherMouseDragged:
		if f.DeltaX == 0 && f.DeltaY == 0 {
			return ev, false, true
		}
		return input.InputEvent{Type: input.EventMotion, DeltaX: int(f.DeltaX), DeltaY: int(f.DeltaY)}, true, true
	case evLeftMouseDown, evLeftMouseUp:
		return button(protocol.ButtonLeft, typ == evLeftMouseDown), true, true
	case evRightMouseDown, evRightMouseUp:
		return button(protocol.ButtonRight, typ == evRightMouseDown), true, true
	case evOtherMouseDown, evOtherMouseUp:
		if f.ButtonNumber != middleButtonNumber {
			return ev, false, true
		}
		return button(protocol.ButtonMiddle, typ == evOtherMouseDown), true, true
	case evScrollWheel:
		// axis 2 is positive to the left
		ev = input.InputEvent{Type: input.EventWheel, WheelY: int(f.ScrollY), WheelX: -int(f.ScrollX)}
		return ev, ev.WheelX != 0 || ev.WheelY != 0, true
	}
	return ev, false, false
}

func button(b protocol.Button, pressed bool) input.InputEvent {
	return input.InputEvent{Type: input.EventButton, Button: b, Pressed: pressed}
}
