//go:build linux

package evdev

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"zedlink/internal/input"
)

// _IOW('E', 0x90, int)
const eviocgrab = 0x40044590

// struct input_event: timeval, __u16 type, __u16 code, __s32 value
var eventSize = 2*(strconv.IntSize/8) + 8

const devicesPath = "/proc/bus/input/devices"

// Capture grabs every pointer device, mice and touchpads, with EVIOCGRAB.
type Capture struct {
	log *zap.Logger

	mu     sync.Mutex
	files  []*os.File
	events chan input.InputEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates an evdev capture.
func New(log *zap.Logger) *Capture {
	if log == nil {
		log = zap.NewNop()
	}
	return &Capture{log: log.Named("evdev")}
}

// Available reports whether at least one listed pointer device can actually
// be opened and grabbed by this process. The grab is released immediately.
func Available() bool {
	devs, err := listDevices()
	if err != nil {
		return false
	}
	for _, d := range devs {
		f, err := os.OpenFile(d.Path, os.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			continue
		}
		ok := grab(f, true) == nil
		if ok {
			grab(f, false)
		}
		f.Close()
		if ok {
			return true
		}
	}
	return false
}

func listDevices() ([]Device, error) {
	f, err := os.Open(devicesPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseDevices(f)
}

func grab(f *os.File, on bool) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	v := 0
	if on {
		v = 1
	}
	var ioctlErr error
	if err := rc.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetInt(int(fd), eviocgrab, v)
	}); err != nil {
		return err
	}
	return ioctlErr
}

func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events != nil {
		return nil
	}

	devs, err := listDevices()
	if err != nil {
		return fmt.Errorf("list input devices: %w", err)
	}
	if len(devs) == 0 {
		return input.ErrNoDevices
	}

	var files []*os.File
	for _, d := range devs {
		f, err := os.OpenFile(d.Path, os.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			c.log.Warn("cannot open device", zap.String("path", d.Path), zap.Error(err))
			continue
		}
		if err := grab(f, true); err != nil {
			c.log.Warn("cannot grab device", zap.String("path", d.Path), zap.Error(err))
			f.Close()
			continue
		}
		c.log.Debug("grabbed", zap.String("device", d.Name), zap.String("path", d.Path), zap.Bool("absolute", d.Absolute))
		files = append(files, f)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: none could be grabbed", input.ErrNoDevices)
	}

	c.files = files
	c.events = make(chan input.InputEvent, 256)
	c.done = make(chan struct{})
	for _, f := range files {
		c.wg.Add(1)
		go c.read(f, c.events, c.done)
	}
	return nil
}

func (c *Capture) read(f *os.File, events chan<- input.InputEvent, done <-chan struct{}) {
	defer c.wg.Done()

	buf := make([]byte, eventSize*64)
	var (
		dec decoder
		out []input.InputEvent
	)
	tv := eventSize - 8
	for {
		n, err := f.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				c.log.Warn("device read failed", zap.String("path", f.Name()), zap.Error(err))
			}
			return
		}
		out = out[:0]
		for off := 0; off+eventSize <= n; off += eventSize {
			rec := buf[off : off+eventSize]
			typ := binary.NativeEndian.Uint16(rec[tv:])
			code := binary.NativeEndian.Uint16(rec[tv+2:])
			value := int32(binary.NativeEndian.Uint32(rec[tv+4:]))
			out = dec.feed(typ, code, value, out)
		}
		for _, ev := range out {
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		return nil
	}

	var errs []error
	for _, f := range c.files {
		if err := grab(f, false); err != nil {
			errs = append(errs, fmt.Errorf("ungrab %s: %w", f.Name(), err))
		}
	}
	close(c.done)
	for _, f := range c.files {
		f.Close()
	}
	c.wg.Wait()
	close(c.events)

	c.files = nil
	c.events = nil
	return errors.Join(errs...)
}

func (c *Capture) Events() <-chan input.InputEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}
