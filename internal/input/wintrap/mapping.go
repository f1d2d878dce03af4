// Package wintrap captures the Windows pointer during remote mode: raw input
// supplies motion deltas, ClipCursor pins the cursor and a low-level mouse
// hook swallows buttons and wheel so nothing reaches local windows.
package wintrap

import (
	"zedlink/internal/input"
	"zedlink/internal/protocol"
)

// winuser.h
const (
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmMouseWheel  = 0x020A
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C
	wmMouseHWheel = 0x020E

	wheelDelta = 120

	// RAWMOUSE.usFlags
	mouseMoveAbsolute = 0x01

	// MSLLHOOKSTRUCT.flags
	llmhfInjected = 0x01

	absoluteRange = 65536
)

// mapper turns raw input reports and hook messages into input events. It is
// owned by the capture thread.
type mapper struct {
	screenW, screenH int

	absX, absY int32
	haveAbs    bool

	wheelX, wheelY int
}

func newMapper(w, h int) *mapper {
	return &mapper{screenW: w, screenH: h}
}

// motion maps a RAWMOUSE report to a relative motion event. Absolute reports
// (remote desktop, virtual machines) become deltas against the previous
// report, scaled from the 0..65535 range to the screen.
func (m *mapper) motion(flags uint16, lastX, lastY int32) (input.InputEvent, bool) {
	var dx, dy int
	if flags&mouseMoveAbsolute != 0 {
		if m.haveAbs {
			dx = int(lastX-m.absX) * m.screenW / absoluteRange
			dy = int(lastY-m.absY) * m.screenH / absoluteRange
		}
		m.absX, m.absY, m.haveAbs = lastX, lastY, true
	} else {
		dx, dy = int(lastX), int(lastY)
	}
	if dx == 0 && dy == 0 {
		return input.InputEvent{}, false
	}
	return input.InputEvent{Type: input.EventMotion, DeltaX: dx, DeltaY: dy}, true
}

// hook maps a low-level mouse hook message. swallow reports whether the
// message must be kept from the rest of the system; ok whether ev is set.
// Motion passes through because ClipCursor already pins it and raw input
// reports it.
func (m *mapper) hook(msg, mouseData, flags uint32) (ev input.InputEvent, ok, swallow bool) {
	if flags&llmhfInjected != 0 {
		return ev, false, false
	}
	switch msg {
	case wmLButtonDown, wmLButtonUp:
		return button(protocol.ButtonLeft, msg == wmLButtonDown), true, true
	case wmRButtonDown, wmRButtonUp:
		return button(protocol.ButtonRight, msg == wmRButtonDown), true, true
	case wmMButtonDown, wmMButtonUp:
		return button(protocol.ButtonMiddle, msg == wmMButtonDown), true, true
	case wmXButtonDown, wmXButtonUp:
		// no wire mapping for back/forward, but they must not act locally
		return ev, false, true
	case wmMouseWheel:
		n := notches(&m.wheelY, mouseData)
		return input.InputEvent{Type: input.EventWheel, WheelY: n}, n != 0, true
	case wmMouseHWheel:
		n := notches(&m.wheelX, mouseData)
		return input.InputEvent{Type: input.EventWheel, WheelX: n}, n != 0, true
	}
	return ev, false, false
}

func button(b protocol.Button, pressed bool) input.InputEvent {
	return input.InputEvent{Type: input.EventButton, Button: b, Pressed: pressed}
}

// notches accumulates the signed high word of mouseData and returns whole
// wheel steps, keeping the remainder of high-resolution wheels.
func notches(acc *int, mouseData uint32) int {
	*acc += int(int16(mouseData >> 16))
	n := *acc / wheelDelta
	*acc -= n * wheelDelta
	return n
}
