//go:build !windows

package wintrap

import (
	"errors"

	"go.uber.org/zap"

	"zedlink/internal/input"
)

var errUnsupported = errors.New("wintrap: raw input capture is only available on windows")

// Capture is unavailable off windows.
type Capture struct{}

func New(*zap.Logger) *Capture { return &Capture{} }

func Available() bool { return false }

func (c *Capture) Start() error { return errUnsupported }

func (c *Capture) Stop() error { return nil }

func (c *Capture) Events() <-chan input.InputEvent { return nil }
