//go:build !linux

package evdev

import (
	"errors"

	"go.uber.org/zap"

	"zedlink/internal/input"
)

var errUnsupported = errors.New("evdev: device grab is only available on linux")

// Capture is unavailable off linux.
type Capture struct{}

func New(*zap.Logger) *Capture { return &Capture{} }

func Available() bool { return false }

func (c *Capture) Start() error { return errUnsupported }

func (c *Capture) Stop() error { return nil }

func (c *Capture) Events() <-chan input.InputEvent { return nil }
