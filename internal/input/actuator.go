package input

import (
	"fmt"
	"math"

	"zedlink/internal/protocol"
)

// MoveMode selects how move events are applied on the target.
type MoveMode string

const (
	// MoveAbsolute places the pointer at the normalized position scaled to
	// the local screen.
	MoveAbsolute MoveMode = "absolute"
	// MoveRelative applies the raw delta times sensitivity.
	MoveRelative MoveMode = "relative"
)

// Actuator executes received pointer events against the local pointer.
type Actuator struct {
	inj         InputInjector
	mode        MoveMode
	sensitivity float64
}

// NewActuator creates an actuator over inj.
func NewActuator(inj InputInjector, mode MoveMode, sensitivity float64) *Actuator {
	if mode != MoveRelative {
		mode = MoveAbsolute
	}
	if sensitivity <= 0 {
		sensitivity = 1
	}
	return &Actuator{inj: inj, mode: mode, sensitivity: sensitivity}
}

// ScreenSize reports the local screen, sent to the controller in the handshake ack.
func (a *Actuator) ScreenSize() (int, int) {
	return a.inj.ScreenSize()
}

// Execute applies one event.
func (a *Actuator) Execute(ev protocol.MouseEvent) error {
	switch ev.Type {
	case protocol.TypeMouseMove:
		if a.mode == MoveRelative {
			dx := int(math.Round(float64(ev.DX) * a.sensitivity))
			dy := int(math.Round(float64(ev.DY) * a.sensitivity))
			if dx == 0 && dy == 0 {
				return nil
			}
			return a.inj.MoveBy(dx, dy)
		}
		w, h := a.inj.ScreenSize()
		x := int(math.Round(Clamp(ev.X, 0, 1) * float64(max(w-1, 0))))
		y := int(math.Round(Clamp(ev.Y, 0, 1) * float64(max(h-1, 0))))
		return a.inj.MoveTo(x, y)

	case protocol.TypeMouseClick:
		switch ev.Button {
		case protocol.ButtonLeft, protocol.ButtonRight, protocol.ButtonMiddle:
		default:
			return fmt.Errorf("%w: %q", ErrUnsupportedButton, ev.Button)
		}
		switch ev.State {
		case protocol.StateDown:
			return a.inj.Button(ev.Button, true)
		case protocol.StateUp:
			return a.inj.Button(ev.Button, false)
		default:
			return a.inj.Click(ev.Button)
		}

	case protocol.TypeMouseScroll:
		if ev.ScrollX == 0 && ev.ScrollY == 0 {
			return nil
		}
		return a.inj.Scroll(ev.ScrollX, ev.ScrollY)
	}
	return fmt.Errorf("input: cannot actuate %s", ev.Type)
}
