//go:build !darwin

package mactap

import (
	"errors"

	"go.uber.org/zap"

	"zedlink/internal/input"
)

var errUnsupported = errors.New("mactap: event tap capture is only available on macOS")

// Capture is unavailable off macOS.
type Capture struct{}

func New(*zap.Logger) *Capture { return &Capture{} }

func Available() bool { return false }

func (c *Capture) Start() error { return errUnsupported }

func (c *Capture) Stop() error { return nil }

func (c *Capture) Events() <-chan input.InputEvent { return nil }
