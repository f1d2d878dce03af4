package robot

import (
	"sync"

	hook "github.com/robotn/gohook"
	"go.uber.org/zap"

	"zedlink/internal/input"
	"zedlink/internal/protocol"
)

const (
	wheelVertical   = 3
	wheelHorizontal = 4
)

var hookButtons = map[uint16]protocol.Button{
	1: protocol.ButtonLeft,
	2: protocol.ButtonRight,
	3: protocol.ButtonMiddle,
}

// WarpCapture captures the pointer by pinning the cursor at the screen centre
// and reporting each hook event's offset from the pin as a relative delta.
// It works wherever gohook does but the cursor may flicker between warps.
type WarpCapture struct {
	hooks *Hooks
	ptr   *Pointer
	log   *zap.Logger

	mu           sync.Mutex
	events       chan input.InputEvent
	pinX, pinY   int
	origX, origY int
	active       bool
}

// NewWarpCapture creates a warp-back capture on top of the shared hooks.
func NewWarpCapture(hooks *Hooks, ptr *Pointer, log *zap.Logger) *WarpCapture {
	if log == nil {
		log = zap.NewNop()
	}
	return &WarpCapture{hooks: hooks, ptr: ptr, log: log.Named("warp")}
}

func (w *WarpCapture) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		return nil
	}

	sw, sh := w.ptr.ScreenSize()
	w.origX, w.origY, _ = w.ptr.Position()
	w.pinX, w.pinY = sw/2, sh/2
	w.events = make(chan input.InputEvent, 256)
	w.active = true

	w.ptr.Warp(w.pinX, w.pinY)
	w.hooks.SetMouseHandler(w.onMouse)
	return nil
}

func (w *WarpCapture) Stop() error {
	w.hooks.SetMouseHandler(nil)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return nil
	}
	w.active = false
	close(w.events)
	w.ptr.Warp(w.origX, w.origY)
	return nil
}

func (w *WarpCapture) Events() <-chan input.InputEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.events
}

func (w *WarpCapture) onMouse(e hook.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return
	}

	var ev input.InputEvent
	switch e.Kind {
	case hook.MouseMove, hook.MouseDrag:
		dx, dy := int(e.X)-w.pinX, int(e.Y)-w.pinY
		if dx == 0 && dy == 0 {
			// echo of our own warp
			return
		}
		w.ptr.Warp(w.pinX, w.pinY)
		ev = input.InputEvent{Type: input.EventMotion, DeltaX: dx, DeltaY: dy}

	case hook.MouseHold, hook.MouseUp:
		b, ok := hookButtons[e.Button]
		if !ok {
			return
		}
		ev = input.InputEvent{Type: input.EventButton, Button: b, Pressed: e.Kind == hook.MouseHold}

	case hook.MouseWheel:
		ev = input.InputEvent{Type: input.EventWheel}
		switch e.Direction {
		case wheelVertical:
			ev.WheelY = -int(e.Rotation)
		case wheelHorizontal:
			ev.WheelX = int(e.Rotation)
		default:
			return
		}

	default:
		return
	}

	select {
	case w.events <- ev:
	default:
		w.log.Warn("capture buffer full, event dropped")
	}
}
