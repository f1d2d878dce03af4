// Package robot implements pointer actuation, sampling and hook-based capture
// on top of robotgo and gohook.
package robot

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-vgo/robotgo"

	"zedlink/internal/input"
	"zedlink/internal/protocol"
)

var buttonNames = map[protocol.Button]string{
	protocol.ButtonLeft:   "left",
	protocol.ButtonRight:  "right",
	protocol.ButtonMiddle: "center",
}

func buttonName(b protocol.Button) (string, error) {
	name, ok := buttonNames[b]
	if !ok {
		return "", fmt.Errorf("%w: %q", input.ErrUnsupportedButton, b)
	}
	return name, nil
}

// screen caches robotgo's screen size, rechecked at most every two seconds.
type screen struct {
	mu      sync.Mutex
	w, h    int
	checked time.Time
}

func (s *screen) size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == 0 || time.Since(s.checked) > 2*time.Second {
		s.w, s.h = robotgo.GetScreenSize()
		s.checked = time.Now()
	}
	return s.w, s.h
}

// Injector drives the local pointer with robotgo.
type Injector struct {
	screen screen
}

// NewInjector creates a robotgo injector.
func NewInjector() *Injector {
	return &Injector{}
}

func (i *Injector) ScreenSize() (int, int) {
	return i.screen.size()
}

func (i *Injector) MoveTo(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (i *Injector) MoveBy(dx, dy int) error {
	robotgo.MoveRelative(dx, dy)
	return nil
}

func (i *Injector) Button(b protocol.Button, pressed bool) error {
	name, err := buttonName(b)
	if err != nil {
		return err
	}
	if pressed {
		robotgo.MouseDown(name)
	} else {
		robotgo.MouseUp(name)
	}
	return nil
}

func (i *Injector) Click(b protocol.Button) error {
	name, err := buttonName(b)
	if err != nil {
		return err
	}
	robotgo.Click(name)
	return nil
}

func (i *Injector) Scroll(x, y int) error {
	robotgo.Scroll(x, y)
	return nil
}

// Pointer samples the local cursor position.
type Pointer struct {
	screen screen
}

// NewPointer creates a robotgo pointer sampler.
func NewPointer() *Pointer {
	return &Pointer{}
}

func (p *Pointer) Position() (int, int, error) {
	x, y := robotgo.Location()
	return x, y, nil
}

func (p *Pointer) ScreenSize() (int, int) {
	return p.screen.size()
}

// Warp moves the cursor without generating a synthetic button state.
func (p *Pointer) Warp(x, y int) {
	robotgo.Move(x, y)
}
