package mactap

import (
	"testing"

	"zedlink/internal/input"
	"zedlink/internal/protocol"
)

func TestMapButtons(t *testing.T) {
	tests := []struct {
		typ     uint32
		number  int64
		button  protocol.Button
		pressed bool
	}{
		{evLeftMouseDown, 0, protocol.ButtonLeft, true},
		{evLeftMouseUp, 0, protocol.ButtonLeft, false},
		{evRightMouseDown, 1, protocol.ButtonRight, true},
		{evRightMouseUp, 1, protocol.ButtonRight, false},
		{evOtherMouseDown, middleButtonNumber, protocol.ButtonMiddle, true},
		{evOtherMouseUp, middleButtonNumber, protocol.ButtonMiddle, false},
	}
	for _, tt := range tests {
		ev, ok, swallow := mapEvent(tt.typ, fields{ButtonNumber: tt.number})
		if !ok || !swallow {
			t.Errorf("type %d: Expected mapped and swallowed, got ok=%v swallow=%v", tt.typ, ok, swallow)
			continue
		}
		if ev.Type != input.EventButton || ev.Button != tt.button || ev.Pressed != tt.pressed {
			t.Errorf("type %d: Expected %s pressed=%v, got %+v", tt.typ, tt.button, tt.pressed, ev)
		}
	}

	if _, ok, swallow := mapEvent(evOtherMouseDown, fields{ButtonNumber: 3}); ok || !swallow {
		t.Errorf("Expected back button swallowed without an event, got ok=%v swallow=%v", ok, swallow)
	}
}

func TestMapMotionAndScroll(t *testing.T) {
	for _, typ := range []uint32{evMouseMoved, evLeftMouseDragged, evRightMouseDragged, evOtherMouseDragged} {
		ev, ok, swallow := mapEvent(typ, fields{DeltaX: -4, DeltaY: 9})
		if !ok || !swallow || ev.Type != input.EventMotion || ev.DeltaX != -4 || ev.DeltaY != 9 {
			t.Errorf("type %d: Expected swallowed motion (-4,9), got %+v ok=%v", typ, ev, ok)
		}
	}
	if _, ok, swallow := mapEvent(evMouseMoved, fields{}); ok || !swallow {
		t.Errorf("Expected zero motion swallowed silently, got ok=%v swallow=%v", ok, swallow)
	}

	ev, ok, _ := mapEvent(evScrollWheel, fields{ScrollY: 2, ScrollX: 1})
	if !ok || ev.Type != input.EventWheel || ev.WheelY != 2 || ev.WheelX != -1 {
		t.Errorf("Expected wheel (-1,2), got %+v", ev)
	}

	// key events are not tapped, but must never be dropped
	if _, ok, swallow := mapEvent(10, fields{}); ok || swallow {
		t.Errorf("Expected unrelated event to pass, got ok=%v swallow=%v", ok, swallow)
	}
}
