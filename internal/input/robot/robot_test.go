package robot

import (
	"errors"
	"testing"

	hook "github.com/robotn/gohook"

	"zedlink/internal/input"
	"zedlink/internal/protocol"
)

func TestButtonName(t *testing.T) {
	tests := map[protocol.Button]string{
		protocol.ButtonLeft:   "left",
		protocol.ButtonRight:  "right",
		protocol.ButtonMiddle: "center",
	}
	for b, want := range tests {
		got, err := buttonName(b)
		if err != nil || got != want {
			t.Errorf("Expected %q for %s, got %q (%v)", want, b, got, err)
		}
	}
	if _, err := buttonName("thumb"); !errors.Is(err, input.ErrUnsupportedButton) {
		t.Errorf("Expected ErrUnsupportedButton, got %v", err)
	}
}

func TestKeyNameModifiers(t *testing.T) {
	tests := map[uint16]string{
		0x0001: "ESC",
		0x001D: "CTRL",
		0x0E1D: "CTRL",
		0x0038: "ALT",
		0x0E5B: "CMD",
		0x0032: "M",
		0x0058: "F12",
	}
	for code, want := range tests {
		if got := keyName(hook.Event{Keycode: code}); got != want {
			t.Errorf("Expected %q for 0x%04X, got %q", want, code, got)
		}
	}
}

func TestHooksDispatchKeys(t *testing.T) {
	h := NewHooks(nil)
	h.dispatch(hook.Event{Kind: hook.KeyHold, Keycode: 0x0001})
	h.dispatch(hook.Event{Kind: hook.KeyUp, Keycode: 0x0001})

	down := <-h.Keys()
	up := <-h.Keys()
	if down.Key != "ESC" || !down.Down {
		t.Errorf("Expected ESC down, got %+v", down)
	}
	if up.Key != "ESC" || up.Down {
		t.Errorf("Expected ESC up, got %+v", up)
	}
}

func TestHooksDispatchMouse(t *testing.T) {
	h := NewHooks(nil)
	var got []hook.Event
	h.SetMouseHandler(func(e hook.Event) { got = append(got, e) })

	h.dispatch(hook.Event{Kind: hook.MouseMove, X: 5, Y: 6})
	h.SetMouseHandler(nil)
	h.dispatch(hook.Event{Kind: hook.MouseMove, X: 7, Y: 8})

	if len(got) != 1 || got[0].X != 5 {
		t.Errorf("Expected only the first move delivered, got %v", got)
	}
}
