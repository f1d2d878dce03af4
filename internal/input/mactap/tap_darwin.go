//go:build darwin

package mactap

/*
#cgo LDFLAGS: -framework CoreGraphics -framework ApplicationServices
#include <ApplicationServices/ApplicationServices.h>

extern CGEventRef zlTapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon);

static CFMachPortRef zlCreateTap(void) {
	CGEventMask mask = CGEventMaskBit(kCGEventMouseMoved)
		| CGEventMaskBit(kCGEventLeftMouseDown)
		| CGEventMaskBit(kCGEventLeftMouseUp)
		| CGEventMaskBit(kCGEventRightMouseDown)
		| CGEventMaskBit(kCGEventRightMouseUp)
		| CGEventMaskBit(kCGEventOtherMouseDown)
		| CGEventMaskBit(kCGEventOtherMouseUp)
		| CGEventMaskBit(kCGEventScrollWheel)
		| CGEventMaskBit(kCGEventLeftMouseDragged)
		| CGEventMaskBit(kCGEventRightMouseDragged)
		| CGEventMaskBit(kCGEventOtherMouseDragged);

	return CGEventTapCreate(kCGSessionEventTap,
		kCGHeadInsertEventTap,
		kCGEventTapOptionDefault,
		mask,
		zlTapCallback,
		NULL);
}

static CFRunLoopSourceRef zlAttach(CFMachPortRef tap) {
	CFRunLoopSourceRef src = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
	CFRunLoopAddSource(CFRunLoopGetCurrent(), src, kCFRunLoopCommonModes);
	CGEventTapEnable(tap, true);
	CGAssociateMouseAndMouseCursorPosition(false);
	return src;
}

static void zlDetach(CFMachPortRef tap, CFRunLoopSourceRef src) {
	CGAssociateMouseAndMouseCursorPosition(true);
	CGEventTapEnable(tap, false);
	CFRunLoopRemoveSource(CFRunLoopGetCurrent(), src, kCFRunLoopCommonModes);
	CFRelease(src);
	CFMachPortInvalidate(tap);
	CFRelease(tap);
}

static void zlRunFor(double seconds) {
	CFRunLoopRunInMode(kCFRunLoopDefaultMode, seconds, false);
}
*/
import "C"

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"zedlink/internal/input"
)

var (
	errBusy       = errors.New("mactap: another capture is active")
	errNoEventTap = errors.New("mactap: event tap refused, grant Accessibility access")
)

// current receives tap callbacks; they only run on its run loop thread.
var current atomic.Pointer[Capture]

// Capture grabs the pointer with an active event tap on a dedicated run
// loop thread.
type Capture struct {
	log *zap.Logger

	mu       sync.Mutex
	events   chan input.InputEvent
	done     chan struct{}
	stopping atomic.Bool

	// owned by the run loop thread
	tap C.CFMachPortRef
}

// New creates a macOS event tap capture.
func New(log *zap.Logger) *Capture {
	if log == nil {
		log = zap.NewNop()
	}
	return &Capture{log: log.Named("mactap")}
}

// Available reports whether the process may install an active event tap.
func Available() bool {
	return C.AXIsProcessTrusted() != 0
}

func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events != nil {
		return nil
	}
	if !current.CompareAndSwap(nil, c) {
		return errBusy
	}

	c.events = make(chan input.InputEvent, 256)
	c.done = make(chan struct{})
	c.stopping.Store(false)
	ready := make(chan error, 1)
	go c.run(ready)
	if err := <-ready; err != nil {
		<-c.done
		c.events = nil
		current.Store(nil)
		return err
	}
	return nil
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		return nil
	}
	c.stopping.Store(true)
	<-c.done
	current.Store(nil)
	close(c.events)
	c.events = nil
	return nil
}

func (c *Capture) Events() <-chan input.InputEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func (c *Capture) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)

	c.tap = C.zlCreateTap()
	if c.tap == 0 {
		ready <- errNoEventTap
		return
	}
	src := C.zlAttach(c.tap)
	ready <- nil

	for !c.stopping.Load() {
		C.zlRunFor(0.1)
	}
	C.zlDetach(c.tap, src)
	c.tap = 0
}

func (c *Capture) emit(ev input.InputEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("capture buffer full, event dropped")
	}
}

//export zlTapCallback
func zlTapCallback(proxy C.CGEventTapProxy, typ C.CGEventType, event C.CGEventRef, refcon unsafe.Pointer) C.CGEventRef {
	c := current.Load()
	if c == nil {
		return event
	}
	switch typ {
	case C.kCGEventTapDisabledByTimeout, C.kCGEventTapDisabledByUserInput:
		if c.tap != 0 {
			C.CGEventTapEnable(c.tap, true)
		}
		return event
	}

	field := func(f C.CGEventField) int64 {
		return int64(C.CGEventGetIntegerValueField(event, f))
	}
	ev, ok, swallow := mapEvent(uint32(typ), fields{
		DeltaX:       field(C.kCGMouseEventDeltaX),
		DeltaY:       field(C.kCGMouseEventDeltaY),
		ButtonNumber: field(C.kCGMouseEventButtonNumber),
		ScrollY:      field(C.kCGScrollWheelEventDeltaAxis1),
		ScrollX:      field(C.kCGScrollWheelEventDeltaAxis2),
	})
	if ok {
		c.emit(ev)
	}
	if swallow {
		return nil
	}
	return event
}
