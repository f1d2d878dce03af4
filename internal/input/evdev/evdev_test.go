package evdev

import (
	"strings"
	"testing"

	"zedlink/internal/input"
	"zedlink/internal/protocol"
)

const procDevices = `I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
P: Phys=PNP0C0C/button/input0
H: Handlers=kbd event0
B: PROP=0
B: EV=3
B: KEY=10000000000000 0

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver"
P: Phys=usb-0000:00:14.0-1/input0
H: Handlers=mouse0 event5
B: PROP=0
B: EV=17
B: KEY=ffff0000 0 0 0 0
B: REL=1943
B: MSC=10

I: Bus=0018 Vendor=06cb Product=7e7e Version=0100
N: Name="SYNA7DB5:01 06CB:7E7E Touchpad"
H: Handlers=mouse1 event7
B: EV=1b
B: ABS=2e0800000000003

I: Bus=0003 Vendor=045e Product=028e Version=0110
N: Name="Microsoft X-Box 360 pad"
H: Handlers=event9 js0
B: EV=20000b
B: ABS=3003f

I: Bus=0011 Vendor=0002 Product=0013 Version=0006
N: Name="VirtualPS/2 VMware VMMouse"
H: Handlers=event3 mouse2
B: EV=7
B: REL=3
`

func TestParseDevices(t *testing.T) {
	devs, err := ParseDevices(strings.NewReader(procDevices))
	if err != nil {
		t.Fatal(err)
	}
	if len(devs) != 3 {
		t.Fatalf("Expected 3 pointer devices, got %d: %v", len(devs), devs)
	}
	if devs[0].Path != "/dev/input/event5" || devs[0].Name != "Logitech USB Receiver" || devs[0].Absolute {
		t.Errorf("unexpected first device %+v", devs[0])
	}
	if devs[1].Path != "/dev/input/event7" || !devs[1].Absolute {
		t.Errorf("Expected absolute touchpad on /dev/input/event7, got %+v", devs[1])
	}
	if devs[2].Path != "/dev/input/event3" || devs[2].Absolute {
		t.Errorf("Expected relative /dev/input/event3, got %+v", devs[2])
	}
}

func TestDecoderTouchpadDeltas(t *testing.T) {
	var d decoder
	var out []input.InputEvent

	// first contact only sets the origin
	out = d.feed(evKey, btnTouch, 1, out)
	out = d.feed(evAbs, absX, 1000, out)
	out = d.feed(evAbs, absY, 500, out)
	out = d.feed(evSyn, synReport, 0, out)
	if len(out) != 0 {
		t.Fatalf("Expected no motion on touch down, got %v", out)
	}

	out = d.feed(evAbs, absX, 1012, out)
	out = d.feed(evAbs, absY, 497, out)
	out = d.feed(evSyn, synReport, 0, out)
	if len(out) != 1 || out[0].DeltaX != 12 || out[0].DeltaY != -3 {
		t.Fatalf("Expected motion (12,-3), got %v", out)
	}

	// lifting and touching elsewhere must not jump
	out = d.feed(evKey, btnTouch, 0, out)
	out = d.feed(evSyn, synReport, 0, out)
	out = d.feed(evKey, btnTouch, 1, out)
	out = d.feed(evAbs, absX, 200, out)
	out = d.feed(evAbs, absY, 900, out)
	out = d.feed(evSyn, synReport, 0, out)
	out = d.feed(evAbs, absX, 205, out)
	out = d.feed(evSyn, synReport, 0, out)
	if len(out) != 2 || out[1].DeltaX != 5 || out[1].DeltaY != 0 {
		t.Errorf("Expected only motion (5,0) after re-touch, got %v", out)
	}

	out = d.feed(evKey, btnLeft, 1, out)
	if len(out) != 3 || out[2].Type != input.EventButton || !out[2].Pressed {
		t.Errorf("Expected clickpad press, got %v", out)
	}
}

func TestDecoderFoldsUntilReport(t *testing.T) {
	var d decoder
	var out []input.InputEvent

	out = d.feed(evRel, relX, 3, out)
	out = d.feed(evRel, relY, -2, out)
	out = d.feed(evRel, relX, 1, out)
	if len(out) != 0 {
		t.Fatalf("Expected nothing before SYN_REPORT, got %v", out)
	}
	out = d.feed(evSyn, synReport, 0, out)
	if len(out) != 1 || out[0].Type != input.EventMotion || out[0].DeltaX != 4 || out[0].DeltaY != -2 {
		t.Errorf("Expected one motion (4,-2), got %v", out)
	}
}

func TestDecoderButtonsAndWheel(t *testing.T) {
	var d decoder
	var out []input.InputEvent

	out = d.feed(evRel, relX, 5, out)
	out = d.feed(evKey, btnLeft, 1, out)
	out = d.feed(evKey, btnLeft, 2, out) // autorepeat
	out = d.feed(evSyn, synReport, 0, out)
	out = d.feed(evRel, relWheel, -1, out)
	out = d.feed(evRel, relHWheel, 2, out)
	out = d.feed(evSyn, synReport, 0, out)
	out = d.feed(evKey, btnMiddle, 0, out)
	out = d.feed(evKey, 0x1e, 1, out) // KEY_A is not a pointer button

	if len(out) != 4 {
		t.Fatalf("Expected 4 events, got %d: %v", len(out), out)
	}
	if out[0].Type != input.EventMotion || out[0].DeltaX != 5 {
		t.Errorf("Expected motion flushed before button, got %+v", out[0])
	}
	if out[1].Type != input.EventButton || out[1].Button != protocol.ButtonLeft || !out[1].Pressed {
		t.Errorf("Expected left press, got %+v", out[1])
	}
	if out[2].Type != input.EventWheel || out[2].WheelY != -1 || out[2].WheelX != 2 {
		t.Errorf("Expected wheel (2,-1), got %+v", out[2])
	}
	if out[3].Button != protocol.ButtonMiddle || out[3].Pressed {
		t.Errorf("Expected middle release, got %+v", out[3])
	}
}
