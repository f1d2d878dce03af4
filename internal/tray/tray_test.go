package tray

import (
	"encoding/binary"
	"testing"
)

func TestSolidIcon(t *testing.T) {
	icon := solidIcon(0x10, 0x20, 0x30)

	if len(icon) != 22+40+1024+64 {
		t.Fatalf("Expected 1150 bytes, got %d", len(icon))
	}
	if binary.LittleEndian.Uint16(icon[2:]) != 1 || binary.LittleEndian.Uint16(icon[4:]) != 1 {
		t.Error("Expected a single-image ICO header")
	}
	if got := binary.LittleEndian.Uint32(icon[14:]); got != 40+1024+64 {
		t.Errorf("Expected image size 1128, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(icon[18:]); got != 22 {
		t.Errorf("Expected image offset 22, got %d", got)
	}

	px := icon[62:]
	if px[0] != 0x30 || px[1] != 0x20 || px[2] != 0x10 || px[3] != 0xff {
		t.Errorf("Expected BGRA pixel, got % x", px[:4])
	}
}

func TestSetStatusBeforeRun(t *testing.T) {
	tr := New("ZedLink", nil)
	tr.SetStatus("Remote: connected", true)
	if tr.text != "Remote: connected" || !tr.remote {
		t.Errorf("Expected status to be kept until ready, got %q %v", tr.text, tr.remote)
	}
}
