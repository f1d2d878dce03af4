//go:build windows

package wintrap

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"zedlink/internal/input"
)

const (
	wmQuit  = 0x0012
	wmTimer = 0x0113
	wmInput = 0x00FF

	whMouseLL = 14

	ridInput       = 0x10000003
	rimTypeMouse   = 0
	ridevRemove    = 0x00000001
	ridevInputSink = 0x00000100

	smCXScreen = 0
	smCYScreen = 1

	// ClipCursor is reset by the system on desktop switches and focus
	// changes, so the clip is re-applied on this timer.
	clipTimer      = 1
	clipIntervalMS = 100
)

// (HWND)-3, a message-only window
var hwndMessage = ^uintptr(2)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procRegisterClassEx         = user32.NewProc("RegisterClassExW")
	procCreateWindowEx          = user32.NewProc("CreateWindowExW")
	procDestroyWindow           = user32.NewProc("DestroyWindow")
	procDefWindowProc           = user32.NewProc("DefWindowProcW")
	procGetMessage              = user32.NewProc("GetMessageW")
	procTranslateMessage        = user32.NewProc("TranslateMessage")
	procDispatchMessage         = user32.NewProc("DispatchMessageW")
	procPostThreadMessage       = user32.NewProc("PostThreadMessageW")
	procRegisterRawInputDevices = user32.NewProc("RegisterRawInputDevices")
	procGetRawInputData         = user32.NewProc("GetRawInputData")
	procSetWindowsHookEx        = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx     = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx          = user32.NewProc("CallNextHookEx")
	procClipCursor              = user32.NewProc("ClipCursor")
	procGetCursorPos            = user32.NewProc("GetCursorPos")
	procSetCursorPos            = user32.NewProc("SetCursorPos")
	procGetSystemMetrics        = user32.NewProc("GetSystemMetrics")
	procSetTimer                = user32.NewProc("SetTimer")
	procKillTimer               = user32.NewProc("KillTimer")
	procGetModuleHandle         = kernel32.NewProc("GetModuleHandleW")
)

type point struct {
	X, Y int32
}

type rect struct {
	Left, Top, Right, Bottom int32
}

type msg struct {
	Hwnd     uintptr
	Message  uint32
	WParam   uintptr
	LParam   uintptr
	Time     uint32
	Pt       point
	LPrivate uint32
}

type wndClassEx struct {
	CbSize        uint32
	Style         uint32
	LpfnWndProc   uintptr
	CbClsExtra    int32
	CbWndExtra    int32
	HInstance     uintptr
	HIcon         uintptr
	HCursor       uintptr
	HbrBackground uintptr
	LpszMenuName  *uint16
	LpszClassName *uint16
	HIconSm       uintptr
}

type rawInputDevice struct {
	UsagePage uint16
	Usage     uint16
	Flags     uint32
	Target    uintptr
}

type rawInputHeader struct {
	Type   uint32
	Size   uint32
	Device uintptr
	WParam uintptr
}

// rawMouse mirrors RAWMOUSE; usButtonFlags/usButtonData share a union with
// ulButtons, which puts them at offset 4.
type rawMouse struct {
	Flags       uint16
	_           uint16
	ButtonFlags uint16
	ButtonData  uint16
	RawButtons  uint32
	LastX       int32
	LastY       int32
	ExtraInfo   uint32
}

// rawInput is RAWINPUT restricted to the mouse arm of its union; only mice
// are registered.
type rawInput struct {
	Header rawInputHeader
	Mouse  rawMouse
}

type msllHookStruct struct {
	Pt        point
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

var errBusy = errors.New("wintrap: another capture is active")

var (
	classOnce   sync.Once
	classErr    error
	className   *uint16
	hInstance   uintptr
	wndProcPtr  uintptr
	hookProcPtr uintptr

	// current receives window and hook callbacks; they only run on its
	// capture thread.
	current atomic.Pointer[Capture]
)

// Capture grabs the pointer with raw input, ClipCursor and a low-level
// mouse hook, all owned by one locked OS thread.
type Capture struct {
	log *zap.Logger

	mu     sync.Mutex
	events chan input.InputEvent
	done   chan struct{}
	tid    uint32

	// owned by the capture thread
	m      *mapper
	hwnd   uintptr
	hook   uintptr
	clip   rect
	origin point
}

// New creates a Windows capture.
func New(log *zap.Logger) *Capture {
	if log == nil {
		log = zap.NewNop()
	}
	return &Capture{log: log.Named("wintrap")}
}

// Available reports whether the backend can run on this platform.
func Available() bool {
	return procSetWindowsHookEx.Find() == nil && procRegisterRawInputDevices.Find() == nil
}

func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events != nil {
		return nil
	}
	if err := registerClass(); err != nil {
		return err
	}

	c.events = make(chan input.InputEvent, 256)
	c.done = make(chan struct{})
	ready := make(chan error, 1)
	go c.run(ready)
	if err := <-ready; err != nil {
		<-c.done
		c.events = nil
		return err
	}
	c.log.Debug("pointer trapped", zap.Int32("x", c.clip.Left), zap.Int32("y", c.clip.Top))
	return nil
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		return nil
	}
	procPostThreadMessage.Call(uintptr(c.tid), wmQuit, 0, 0)
	<-c.done
	close(c.events)
	c.events = nil
	return nil
}

func (c *Capture) Events() <-chan input.InputEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func registerClass() error {
	classOnce.Do(func() {
		wndProcPtr = windows.NewCallback(wndProc)
		hookProcPtr = windows.NewCallback(hookProc)
		hInstance, _, _ = procGetModuleHandle.Call(0)

		name, err := windows.UTF16PtrFromString("ZedLinkCapture")
		if err != nil {
			classErr = err
			return
		}
		className = name
		wc := wndClassEx{
			CbSize:        uint32(unsafe.Sizeof(wndClassEx{})),
			LpfnWndProc:   wndProcPtr,
			HInstance:     hInstance,
			LpszClassName: className,
		}
		if r, _, err := procRegisterClassEx.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
			classErr = fmt.Errorf("register window class: %w", err)
		}
	})
	return classErr
}

// run owns the capture thread: window, hook and clip live and die here.
func (c *Capture) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)

	c.tid = windows.GetCurrentThreadId()
	if !current.CompareAndSwap(nil, c) {
		ready <- errBusy
		return
	}
	defer current.Store(nil)

	err := c.setup()
	if err != nil {
		c.teardown()
		ready <- err
		return
	}
	ready <- nil

	var m msg
	for {
		r, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
	}
	c.teardown()
}

func (c *Capture) setup() error {
	w, _, _ := procGetSystemMetrics.Call(smCXScreen)
	h, _, _ := procGetSystemMetrics.Call(smCYScreen)
	c.m = newMapper(int(w), int(h))
	procGetCursorPos.Call(uintptr(unsafe.Pointer(&c.origin)))

	hwnd, _, err := procCreateWindowEx.Call(0,
		uintptr(unsafe.Pointer(className)), 0, 0,
		0, 0, 0, 0,
		hwndMessage, 0, hInstance, 0)
	if hwnd == 0 {
		return fmt.Errorf("create capture window: %w", err)
	}
	c.hwnd = hwnd

	rid := rawInputDevice{UsagePage: 0x01, Usage: 0x02, Flags: ridevInputSink, Target: hwnd}
	if r, _, err := procRegisterRawInputDevices.Call(uintptr(unsafe.Pointer(&rid)), 1, unsafe.Sizeof(rid)); r == 0 {
		return fmt.Errorf("register raw input: %w", err)
	}

	hook, _, err := procSetWindowsHookEx.Call(whMouseLL, hookProcPtr, hInstance, 0)
	if hook == 0 {
		return fmt.Errorf("install mouse hook: %w", err)
	}
	c.hook = hook

	cx, cy := int32(w/2), int32(h/2)
	procSetCursorPos.Call(uintptr(cx), uintptr(cy))
	c.clip = rect{Left: cx, Top: cy, Right: cx + 1, Bottom: cy + 1}
	if r, _, err := procClipCursor.Call(uintptr(unsafe.Pointer(&c.clip))); r == 0 {
		return fmt.Errorf("clip cursor: %w", err)
	}
	procSetTimer.Call(hwnd, clipTimer, clipIntervalMS, 0)
	return nil
}

func (c *Capture) teardown() {
	procClipCursor.Call(0)
	if c.hook != 0 {
		procUnhookWindowsHookEx.Call(c.hook)
		c.hook = 0
	}
	if c.hwnd != 0 {
		procKillTimer.Call(c.hwnd, clipTimer)
		rid := rawInputDevice{UsagePage: 0x01, Usage: 0x02, Flags: ridevRemove}
		procRegisterRawInputDevices.Call(uintptr(unsafe.Pointer(&rid)), 1, unsafe.Sizeof(rid))
		procDestroyWindow.Call(c.hwnd)
		c.hwnd = 0
		procSetCursorPos.Call(uintptr(c.origin.X), uintptr(c.origin.Y))
	}
}

func (c *Capture) emit(ev input.InputEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("capture buffer full, event dropped")
	}
}

func (c *Capture) onRawInput(lparam uintptr) {
	var raw rawInput
	size := uint32(unsafe.Sizeof(raw))
	r, _, _ := procGetRawInputData.Call(lparam, ridInput,
		uintptr(unsafe.Pointer(&raw)), uintptr(unsafe.Pointer(&size)),
		unsafe.Sizeof(raw.Header))
	if int32(r) <= 0 || raw.Header.Type != rimTypeMouse {
		return
	}
	if ev, ok := c.m.motion(raw.Mouse.Flags, raw.Mouse.LastX, raw.Mouse.LastY); ok {
		c.emit(ev)
	}
}

func wndProc(hwnd, message, wparam, lparam uintptr) uintptr {
	c := current.Load()
	switch message {
	case wmInput:
		if c != nil {
			c.onRawInput(lparam)
		}
	case wmTimer:
		if c != nil && wparam == clipTimer {
			procClipCursor.Call(uintptr(unsafe.Pointer(&c.clip)))
		}
		return 0
	}
	r, _, _ := procDefWindowProc.Call(hwnd, message, wparam, lparam)
	return r
}

// hookProc returns non-zero for swallowed messages so no other hook or
// window sees them.
func hookProc(code, wparam, lparam uintptr) uintptr {
	if int32(code) >= 0 {
		if c := current.Load(); c != nil {
			info := (*msllHookStruct)(unsafe.Pointer(lparam))
			ev, ok, swallow := c.m.hook(uint32(wparam), info.MouseData, info.Flags)
			if ok {
				c.emit(ev)
			}
			if swallow {
				return 1
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, code, wparam, lparam)
	return r
}
