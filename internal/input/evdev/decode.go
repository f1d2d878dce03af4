package evdev

import (
	"zedlink/internal/input"
	"zedlink/internal/protocol"
)

// linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01

	synReport = 0

	relX      = 0x00
	relY      = 0x01
	relHWheel = 0x06
	relWheel  = 0x08

	absX = 0x00
	absY = 0x01

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
	btnTouch  = 0x14a
)

var buttons = map[uint16]protocol.Button{
	btnLeft:   protocol.ButtonLeft,
	btnRight:  protocol.ButtonRight,
	btnMiddle: protocol.ButtonMiddle,
}

// decoder folds kernel events between SYN_REPORTs into input events.
// Absolute axes become deltas against the previous position of the same
// touch; lifting the finger forgets it so the next touch does not jump.
type decoder struct {
	dx, dy int
	wx, wy int

	absX, absY   int
	haveX, haveY bool
}

// feed consumes one kernel event and returns any events it completes.
func (d *decoder) feed(typ, code uint16, value int32, out []input.InputEvent) []input.InputEvent {
	switch typ {
	case evRel:
		switch code {
		case relX:
			d.dx += int(value)
		case relY:
			d.dy += int(value)
		case relWheel:
			d.wy += int(value)
		case relHWheel:
			d.wx += int(value)
		}

	case evAbs:
		switch code {
		case absX:
			if d.haveX {
				d.dx += int(value) - d.absX
			}
			d.absX, d.haveX = int(value), true
		case absY:
			if d.haveY {
				d.dy += int(value) - d.absY
			}
			d.absY, d.haveY = int(value), true
		}

	case evKey:
		if code == btnTouch {
			if value == 0 {
				d.haveX, d.haveY = false, false
			}
			return out
		}
		b, ok := buttons[code]
		if !ok || value == 2 {
			return out
		}
		// motion before the button keeps drag order
		out = d.flush(out)
		out = append(out, input.InputEvent{Type: input.EventButton, Button: b, Pressed: value == 1})

	case evSyn:
		if code == synReport {
			out = d.flush(out)
		}
	}
	return out
}

func (d *decoder) flush(out []input.InputEvent) []input.InputEvent {
	if d.dx != 0 || d.dy != 0 {
		out = append(out, input.InputEvent{Type: input.EventMotion, DeltaX: d.dx, DeltaY: d.dy})
	}
	if d.wx != 0 || d.wy != 0 {
		out = append(out, input.InputEvent{Type: input.EventWheel, WheelX: d.wx, WheelY: d.wy})
	}
	d.dx, d.dy, d.wx, d.wy = 0, 0, 0, 0
	return out
}
