//go:build windows

package wintrap

import (
	"testing"
	"unsafe"
)

func TestRawMouseLayout(t *testing.T) {
	var m rawMouse
	offsets := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"ButtonFlags", unsafe.Offsetof(m.ButtonFlags), 4},
		{"ButtonData", unsafe.Offsetof(m.ButtonData), 6},
		{"RawButtons", unsafe.Offsetof(m.RawButtons), 8},
		{"LastX", unsafe.Offsetof(m.LastX), 12},
		{"LastY", unsafe.Offsetof(m.LastY), 16},
	}
	for _, o := range offsets {
		if o.got != o.want {
			t.Errorf("%s: Expected offset %d, got %d", o.name, o.want, o.got)
		}
	}
	if got := unsafe.Sizeof(m); got != 24 {
		t.Errorf("Expected RAWMOUSE size 24, got %d", got)
	}

	ptr := unsafe.Sizeof(uintptr(0))
	var raw rawInput
	if got := unsafe.Offsetof(raw.Mouse); got != 8+2*ptr {
		t.Errorf("Expected mouse data after a %d byte header, got %d", 8+2*ptr, got)
	}

	var hs msllHookStruct
	if unsafe.Offsetof(hs.MouseData) != 8 || unsafe.Offsetof(hs.Flags) != 12 {
		t.Errorf("unexpected MSLLHOOKSTRUCT layout: mouseData@%d flags@%d",
			unsafe.Offsetof(hs.MouseData), unsafe.Offsetof(hs.Flags))
	}
}

func TestHookMapsWheelFromHookStruct(t *testing.T) {
	hs := msllHookStruct{MouseData: uint32(uint16(120)) << 16}
	ev, ok, swallow := newMapper(1920, 1080).hook(wmMouseWheel, hs.MouseData, hs.Flags)
	if !ok || !swallow || ev.WheelY != 1 {
		t.Errorf("Expected one swallowed notch, got %+v ok=%v swallow=%v", ev, ok, swallow)
	}
}

func TestAvailable(t *testing.T) {
	if !Available() {
		t.Error("Expected raw input capture available on windows")
	}
}
