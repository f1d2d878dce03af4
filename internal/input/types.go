// Package input provides pointer capture on the controller and pointer
// actuation on the target. Platform backends live in subpackages.
package input

import (
	"errors"

	"zedlink/internal/protocol"
)

// EventType classifies a raw device event.
type EventType int

const (
	EventMotion EventType = iota
	EventButton
	EventWheel
)

// InputEvent is a raw relative event read from a grabbed pointer device
type InputEvent struct {
	Type    EventType
	DeltaX  int
	DeltaY  int
	Button  protocol.Button
	Pressed bool
	WheelX  int
	WheelY  int
}

// InputCapture grabs the local pointer so the OS cursor stays put and
// reports the raw events instead. Events returns the channel of the current
// grab; it is closed after Stop.
type InputCapture interface {
	Start() error
	Stop() error
	Events() <-chan InputEvent
}

// InputInjector drives the local pointer
type InputInjector interface {
	ScreenSize() (w, h int)
	MoveTo(x, y int) error
	MoveBy(dx, dy int) error
	Button(b protocol.Button, pressed bool) error
	Click(b protocol.Button) error
	Scroll(x, y int) error
}

var (
	ErrUnsupportedButton = errors.New("input: unsupported button")
	ErrNoDevices         = errors.New("input: no pointer devices found")
)
