// Package x11 samples the pointer directly from the X server.
package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
)

// Pointer queries the root window pointer position over a dedicated X
// connection.
type Pointer struct {
	xu   *xgbutil.XUtil
	root xproto.Window
}

// NewPointer connects to $DISPLAY.
func NewPointer() (*Pointer, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("x11: connect: %w", err)
	}
	return &Pointer{xu: xu, root: xu.RootWin()}, nil
}

func (p *Pointer) Position() (int, int, error) {
	reply, err := xproto.QueryPointer(p.xu.Conn(), p.root).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("x11: query pointer: %w", err)
	}
	return int(reply.RootX), int(reply.RootY), nil
}

func (p *Pointer) ScreenSize() (int, int) {
	s := p.xu.Screen()
	return int(s.WidthInPixels), int(s.HeightInPixels)
}

// Close releases the X connection.
func (p *Pointer) Close() {
	p.xu.Conn().Close()
}
