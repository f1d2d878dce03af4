package robot

import (
	"context"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
	"go.uber.org/zap"

	"zedlink/internal/hotkey"
)

// libuiohook virtual key codes for the keys hotkeys are made of.
var keyNames = map[uint16]string{
	0x0001: "ESC",
	0x001D: "CTRL", 0x0E1D: "CTRL",
	0x0038: "ALT", 0x0E38: "ALT",
	0x002A: "SHIFT", 0x0036: "SHIFT",
	0x0E5B: "CMD", 0x0E5C: "CMD",
	0x0039: "SPACE", 0x000F: "TAB", 0x001C: "ENTER", 0x000E: "BACKSPACE",
	0x0002: "1", 0x0003: "2", 0x0004: "3", 0x0005: "4", 0x0006: "5",
	0x0007: "6", 0x0008: "7", 0x0009: "8", 0x000A: "9", 0x000B: "0",
	0x0010: "Q", 0x0011: "W", 0x0012: "E", 0x0013: "R", 0x0014: "T",
	0x0015: "Y", 0x0016: "U", 0x0017: "I", 0x0018: "O", 0x0019: "P",
	0x001E: "A", 0x001F: "S", 0x0020: "D", 0x0021: "F", 0x0022: "G",
	0x0023: "H", 0x0024: "J", 0x0025: "K", 0x0026: "L",
	0x002C: "Z", 0x002D: "X", 0x002E: "C", 0x002F: "V", 0x0030: "B",
	0x0031: "N", 0x0032: "M",
	0x003B: "F1", 0x003C: "F2", 0x003D: "F3", 0x003E: "F4", 0x003F: "F5",
	0x0040: "F6", 0x0041: "F7", 0x0042: "F8", 0x0043: "F9", 0x0044: "F10",
	0x0057: "F11", 0x0058: "F12",
}

func keyName(e hook.Event) string {
	if name, ok := keyNames[e.Keycode]; ok {
		return name
	}
	return strings.ToUpper(hook.RawcodetoKeychar(e.Rawcode))
}

// Hooks owns the process-wide gohook listener and fans its events out to the
// hotkey key stream and, while capture is active, to a mouse handler.
type Hooks struct {
	log  *zap.Logger
	keys chan hotkey.KeyEvent

	mu    sync.Mutex
	mouse func(hook.Event)
}

// NewHooks creates the hook dispatcher. Call Run to start listening.
func NewHooks(log *zap.Logger) *Hooks {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hooks{
		log:  log.Named("hooks"),
		keys: make(chan hotkey.KeyEvent, 256),
	}
}

// Keys returns the stream of key presses and releases.
func (h *Hooks) Keys() <-chan hotkey.KeyEvent {
	return h.keys
}

// SetMouseHandler routes mouse events to fn until it is replaced or cleared
// with nil. fn runs on the hook goroutine.
func (h *Hooks) SetMouseHandler(fn func(hook.Event)) {
	h.mu.Lock()
	h.mouse = fn
	h.mu.Unlock()
}

// Run listens until ctx is cancelled.
func (h *Hooks) Run(ctx context.Context) error {
	evs := hook.Start()
	defer hook.End()
	h.log.Info("global hooks started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-evs:
			if !ok {
				return nil
			}
			h.dispatch(e)
		}
	}
}

func (h *Hooks) dispatch(e hook.Event) {
	switch e.Kind {
	case hook.KeyHold, hook.KeyUp:
		name := keyName(e)
		if name == "" {
			return
		}
		select {
		case h.keys <- hotkey.KeyEvent{Key: name, Down: e.Kind == hook.KeyHold}:
		default:
			h.log.Warn("key event dropped", zap.String("key", name))
		}

	case hook.MouseMove, hook.MouseDrag, hook.MouseHold, hook.MouseUp, hook.MouseWheel:
		h.mu.Lock()
		fn := h.mouse
		h.mu.Unlock()
		if fn != nil {
			fn(e)
		}
	}
}
