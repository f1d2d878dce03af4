package input

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"zedlink/internal/protocol"
)

type fakeInjector struct {
	w, h  int
	calls []string
	fail  error
}

func (f *fakeInjector) ScreenSize() (int, int) { return f.w, f.h }

func (f *fakeInjector) record(s string) error {
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, s)
	return nil
}

func (f *fakeInjector) MoveTo(x, y int) error   { return f.record(fmt.Sprintf("to %d,%d", x, y)) }
func (f *fakeInjector) MoveBy(dx, dy int) error { return f.record(fmt.Sprintf("by %d,%d", dx, dy)) }
func (f *fakeInjector) Button(b protocol.Button, pressed bool) error {
	return f.record(fmt.Sprintf("button %s %v", b, pressed))
}
func (f *fakeInjector) Click(b protocol.Button) error { return f.record("click " + string(b)) }
func (f *fakeInjector) Scroll(x, y int) error         { return f.record(fmt.Sprintf("scroll %d,%d", x, y)) }

func TestActuatorAbsolute(t *testing.T) {
	inj := &fakeInjector{w: 1921, h: 1081}
	a := NewActuator(inj, MoveAbsolute, 1)

	events := []protocol.MouseEvent{
		{Type: protocol.TypeMouseMove, X: 0.5, Y: 1},
		{Type: protocol.TypeMouseClick, Button: protocol.ButtonLeft},
		{Type: protocol.TypeMouseClick, Button: protocol.ButtonRight, State: protocol.StateDown},
		{Type: protocol.TypeMouseClick, Button: protocol.ButtonRight, State: protocol.StateUp},
		{Type: protocol.TypeMouseScroll, ScrollY: -3},
	}
	for _, ev := range events {
		if err := a.Execute(ev); err != nil {
			t.Fatalf("Execute(%v): %v", ev, err)
		}
	}

	want := []string{"to 960,1080", "click left", "button right true", "button right false", "scroll 0,-3"}
	if fmt.Sprint(inj.calls) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, inj.calls)
	}
}

func TestActuatorRelative(t *testing.T) {
	inj := &fakeInjector{w: 800, h: 600}
	a := NewActuator(inj, MoveRelative, 1.5)

	a.Execute(protocol.MouseEvent{Type: protocol.TypeMouseMove, DX: 4, DY: -2})
	a.Execute(protocol.MouseEvent{Type: protocol.TypeMouseMove})

	if len(inj.calls) != 1 || inj.calls[0] != "by 6,-3" {
		t.Errorf("Expected [by 6,-3], got %v", inj.calls)
	}
}

func TestActuatorErrors(t *testing.T) {
	inj := &fakeInjector{w: 10, h: 10}
	a := NewActuator(inj, MoveAbsolute, 1)

	err := a.Execute(protocol.MouseEvent{Type: protocol.TypeMouseClick, Button: "thumb"})
	if !errors.Is(err, ErrUnsupportedButton) {
		t.Errorf("Expected ErrUnsupportedButton, got %v", err)
	}

	inj.fail = errors.New("denied")
	if err := a.Execute(protocol.MouseEvent{Type: protocol.TypeMouseScroll, ScrollX: 1}); err == nil {
		t.Error("Expected injector error to be returned")
	}
}

func TestVirtualCursor(t *testing.T) {
	c := NewVirtualCursor(101, 51, 2)
	c.Place(0, 0.5)

	x, y := c.Move(10, 0)
	if x != 0.2 || y != 0.5 {
		t.Errorf("Expected (0.2, 0.5), got (%v, %v)", x, y)
	}

	x, _ = c.Move(-1000, 0)
	if x != 0 {
		t.Errorf("Expected clamp to 0, got %v", x)
	}
	_, y = c.Move(0, 1000)
	if y != 1 {
		t.Errorf("Expected clamp to 1, got %v", y)
	}
}

type fakeCapture struct {
	mu      sync.Mutex
	events  chan InputEvent
	grabbed bool
	starts  int
	fail    error
}

func (f *fakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.events = make(chan InputEvent, 16)
	f.grabbed = true
	f.starts++
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grabbed = false
	close(f.events)
	return nil
}

func (f *fakeCapture) Events() <-chan InputEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events
}

func (f *fakeCapture) send(ev InputEvent) {
	f.mu.Lock()
	ch := f.events
	f.mu.Unlock()
	ch <- ev
}

type recordingSink struct {
	mu     sync.Mutex
	events []protocol.MouseEvent
	got    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{got: make(chan struct{}, 64)}
}

func (s *recordingSink) sink(_ context.Context, ev protocol.MouseEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.got <- struct{}{}
	return nil
}

func (s *recordingSink) wait(t *testing.T, n int) []protocol.MouseEvent {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.MouseEvent(nil), s.events...)
}

func TestCaptureManagerOrdering(t *testing.T) {
	dev := &fakeCapture{}
	rec := newRecordingSink()
	cm := NewCaptureManager(dev, rec.sink, CaptureConfig{Tick: time.Hour, Sensitivity: 1}, nil)
	cm.SetTargetSize(101, 101)

	if err := cm.Start(0, 0.5); err != nil {
		t.Fatal(err)
	}
	if !cm.Active() || !dev.grabbed {
		t.Fatal("Expected capture active with device grabbed")
	}

	dev.send(InputEvent{Type: EventMotion, DeltaX: 3, DeltaY: 1})
	dev.send(InputEvent{Type: EventMotion, DeltaX: 2})
	dev.send(InputEvent{Type: EventButton, Button: protocol.ButtonLeft, Pressed: true})
	dev.send(InputEvent{Type: EventWheel, WheelY: 2})

	got := rec.wait(t, 3)
	if got[0].Type != protocol.TypeMouseMove || got[0].DX != 5 || got[0].DY != 1 {
		t.Errorf("Expected pending motion flushed before click, got %v", got[0])
	}
	if got[0].X != 0.05 || got[0].Y != 0.51 {
		t.Errorf("Expected position (0.05, 0.51), got (%v, %v)", got[0].X, got[0].Y)
	}
	if got[1].Type != protocol.TypeMouseClick || got[1].State != protocol.StateDown {
		t.Errorf("Expected button down, got %v", got[1])
	}
	if got[2].Type != protocol.TypeMouseScroll || got[2].ScrollY != 2 {
		t.Errorf("Expected scroll, got %v", got[2])
	}

	if err := cm.Stop(); err != nil {
		t.Fatal(err)
	}
	if cm.Active() || dev.grabbed {
		t.Error("Expected grab released after Stop")
	}
}

func TestCaptureManagerNoEventsAfterStop(t *testing.T) {
	dev := &fakeCapture{}
	var mu sync.Mutex
	stopped := false
	late := 0
	sink := func(_ context.Context, ev protocol.MouseEvent) error {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			late++
		}
		return nil
	}
	cm := NewCaptureManager(dev, sink, CaptureConfig{Tick: time.Millisecond}, nil)

	cm.Start(0.5, 0.5)
	for i := 0; i < 10; i++ {
		dev.send(InputEvent{Type: EventMotion, DeltaX: 1})
	}
	cm.Stop()
	mu.Lock()
	stopped = true
	mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if late != 0 {
		t.Errorf("Expected no events after Stop, got %d", late)
	}
}

func TestCaptureManagerReturnEdge(t *testing.T) {
	dev := &fakeCapture{}
	rec := newRecordingSink()
	returned := make(chan struct{}, 4)
	cm := NewCaptureManager(dev, rec.sink, CaptureConfig{
		Tick: time.Millisecond,
		Crossed: func(x, _ float64, dx, _ int) bool {
			return x <= 0 && dx < 0
		},
		OnReturnEdge: func() { returned <- struct{}{} },
	}, nil)

	cm.Start(0, 0.5)
	defer cm.Stop()

	dev.send(InputEvent{Type: EventMotion, DeltaX: -4})
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected return edge callback")
	}

	dev.send(InputEvent{Type: EventMotion, DeltaX: -4})
	rec.wait(t, 2)
	if len(returned) != 0 {
		t.Error("Expected return edge to fire once per capture")
	}
}

func TestCaptureManagerGrabFailure(t *testing.T) {
	dev := &fakeCapture{fail: errors.New("permission denied")}
	cm := NewCaptureManager(dev, newRecordingSink().sink, CaptureConfig{}, nil)
	if err := cm.Start(0, 0); err == nil {
		t.Fatal("Expected grab failure")
	}
	if cm.Active() {
		t.Error("Expected capture inactive after grab failure")
	}
}

func TestCaptureManagerReleasesHeldButtonsOnStop(t *testing.T) {
	dev := &fakeCapture{}
	rec := newRecordingSink()
	cm := NewCaptureManager(dev, rec.sink, CaptureConfig{Tick: time.Hour}, nil)

	if err := cm.Start(0.5, 0.5); err != nil {
		t.Fatal(err)
	}
	dev.send(InputEvent{Type: EventButton, Button: protocol.ButtonLeft, Pressed: true})
	dev.send(InputEvent{Type: EventButton, Button: protocol.ButtonRight, Pressed: true})
	dev.send(InputEvent{Type: EventButton, Button: protocol.ButtonRight, Pressed: false})
	rec.wait(t, 3)

	if err := cm.Stop(); err != nil {
		t.Fatal(err)
	}
	got := rec.wait(t, 1)
	if len(got) != 4 {
		t.Fatalf("Expected exactly one release after Stop, got %v", got)
	}
	last := got[3]
	if last.Type != protocol.TypeMouseClick || last.Button != protocol.ButtonLeft || last.State != protocol.StateUp {
		t.Errorf("Expected left up on Stop, got %v", last)
	}
}

func TestFallbackUsesNextBackend(t *testing.T) {
	primary := &fakeCapture{fail: fmt.Errorf("%w: none could be grabbed", ErrNoDevices)}
	secondary := &fakeCapture{}
	fb := NewFallback(nil, Backend{"evdev", primary}, Backend{"warp", secondary})

	if err := fb.Start(); err != nil {
		t.Fatalf("Expected fallback to warp, got %v", err)
	}
	if fb.Active() != "warp" || !secondary.grabbed {
		t.Fatalf("Expected warp active, got %q", fb.Active())
	}
	if fb.Events() != secondary.Events() {
		t.Error("Expected events from the active backend")
	}
	if err := fb.Stop(); err != nil {
		t.Fatal(err)
	}
	if secondary.grabbed || fb.Active() != "" {
		t.Error("Expected grab released after Stop")
	}

	// the working backend is preferred from now on
	if err := fb.Start(); err != nil {
		t.Fatal(err)
	}
	defer fb.Stop()
	if secondary.starts != 2 {
		t.Errorf("Expected warp started twice, got %d", secondary.starts)
	}
}

func TestFallbackAllFail(t *testing.T) {
	fb := NewFallback(nil,
		Backend{"evdev", &fakeCapture{fail: ErrNoDevices}},
		Backend{"warp", &fakeCapture{fail: errors.New("no display")}},
	)
	err := fb.Start()
	if !errors.Is(err, ErrNoDevices) {
		t.Errorf("Expected joined error carrying ErrNoDevices, got %v", err)
	}
	if fb.Events() != nil {
		t.Error("Expected no events without a grab")
	}
}

func TestCaptureManagerFallsBack(t *testing.T) {
	secondary := &fakeCapture{}
	fb := NewFallback(nil,
		Backend{"evdev", &fakeCapture{fail: ErrNoDevices}},
		Backend{"warp", secondary},
	)
	rec := newRecordingSink()
	cm := NewCaptureManager(fb, rec.sink, CaptureConfig{Tick: time.Hour}, nil)
	if err := cm.Start(0.5, 0.5); err != nil {
		t.Fatalf("Expected capture through fallback, got %v", err)
	}
	defer cm.Stop()

	secondary.send(InputEvent{Type: EventWheel, WheelY: 1})
	if got := rec.wait(t, 1); got[0].Type != protocol.TypeMouseScroll {
		t.Errorf("Expected scroll from fallback backend, got %v", got[0])
	}
}
