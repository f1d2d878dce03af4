// Package tray shows the control mode in the system tray and offers the
// toggle, connect and quit actions.
package tray

import (
	"encoding/binary"
	"sync"

	"github.com/getlantern/systray"
)

// Action is a menu entry and its click handler.
type Action struct {
	Title    string
	Tooltip  string
	Callback func()
}

// Tray manages the tray icon, a status line and the action menu.
type Tray struct {
	title   string
	actions []Action
	onQuit  func()

	mu      sync.Mutex
	ready   bool
	stopped bool
	status  *systray.MenuItem
	text    string
	remote  bool
	quitted chan struct{}
}

// New creates a tray. onQuit runs when the user picks Quit.
func New(title string, onQuit func()) *Tray {
	return &Tray{
		title:   title,
		onQuit:  onQuit,
		text:    "Local",
		quitted: make(chan struct{}),
	}
}

// AddAction appends a menu entry. Call before Run.
func (t *Tray) AddAction(a Action) {
	t.actions = append(t.actions, a)
}

// SetStatus updates the status line and the icon colour. Safe before Run.
func (t *Tray) SetStatus(text string, remote bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text, t.remote = text, remote
	if t.ready {
		t.apply()
	}
}

// Run starts the tray event loop and blocks until Stop or Quit. It must be
// called from the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.setup, func() { close(t.quitted) })
}

// Stop ends the tray loop. It may be called before the loop is ready.
func (t *Tray) Stop() {
	t.mu.Lock()
	t.stopped = true
	ready := t.ready
	t.mu.Unlock()
	if ready {
		systray.Quit()
	}
}

func (t *Tray) setup() {
	systray.SetTitle(t.title)

	t.mu.Lock()
	t.status = systray.AddMenuItem(t.text, "Current mode")
	t.status.Disable()
	t.ready = true
	t.apply()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		systray.Quit()
		return
	}

	systray.AddSeparator()
	for _, a := range t.actions {
		item := systray.AddMenuItem(a.Title, a.Tooltip)
		go t.listen(item, a.Callback)
	}
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Stop "+t.title)
	go t.listen(quit, func() {
		if t.onQuit != nil {
			t.onQuit()
		}
		systray.Quit()
	})
}

func (t *Tray) listen(item *systray.MenuItem, fn func()) {
	for {
		select {
		case <-item.ClickedCh:
			if fn != nil {
				fn()
			}
		case <-t.quitted:
			return
		}
	}
}

// apply pushes the status to the tray. Callers hold t.mu.
func (t *Tray) apply() {
	t.status.SetTitle(t.text)
	systray.SetTooltip(t.title + ": " + t.text)
	if t.remote {
		systray.SetIcon(remoteIcon)
	} else {
		systray.SetIcon(localIcon)
	}
}

var (
	localIcon  = solidIcon(0x60, 0x60, 0x60)
	remoteIcon = solidIcon(0x20, 0xa0, 0x40)
)

// solidIcon builds a 16x16 32-bit ICO filled with one colour.
func solidIcon(r, g, b byte) []byte {
	const (
		size      = 16
		headerLen = 6 + 16
		dibLen    = 40
		pixelLen  = size * size * 4
		maskLen   = size * 4 // 1bpp rows padded to 32 bits
	)
	icon := make([]byte, headerLen+dibLen+pixelLen+maskLen)
	le := binary.LittleEndian

	// ICONDIR
	le.PutUint16(icon[2:], 1)
	le.PutUint16(icon[4:], 1)
	// ICONDIRENTRY
	icon[6], icon[7] = size, size
	le.PutUint16(icon[10:], 1)
	le.PutUint16(icon[12:], 32)
	le.PutUint32(icon[14:], dibLen+pixelLen+maskLen)
	le.PutUint32(icon[18:], headerLen)

	dib := icon[headerLen:]
	le.PutUint32(dib[0:], dibLen)
	le.PutUint32(dib[4:], size)
	le.PutUint32(dib[8:], size*2) // colour plus mask
	le.PutUint16(dib[12:], 1)
	le.PutUint16(dib[14:], 32)
	le.PutUint32(dib[20:], pixelLen)

	px := dib[dibLen:]
	for i := 0; i < pixelLen; i += 4 {
		px[i], px[i+1], px[i+2], px[i+3] = b, g, r, 0xff
	}
	return icon
}
