package input

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"zedlink/internal/protocol"
)

// Sink receives captured pointer events. It may block; ctx is cancelled when
// capture stops. The button releases sent while stopping get their own
// short-lived context.
type Sink func(ctx context.Context, ev protocol.MouseEvent) error

// releaseTimeout bounds how long stopping waits to queue held-button releases.
const releaseTimeout = 250 * time.Millisecond

// CaptureConfig configures a CaptureManager.
type CaptureConfig struct {
	// Tick is the interval at which accumulated motion is flushed.
	Tick        time.Duration
	Sensitivity float64
	// Crossed reports whether a move pushed the virtual cursor past the
	// return edge.
	Crossed func(x, y float64, dx, dy int) bool
	// OnReturnEdge is called at most once per capture, from the capture loop.
	// It must not block.
	OnReturnEdge func()
}

// CaptureManager turns a grabbed pointer into outbound pointer events while
// remote mode is active.
type CaptureManager struct {
	dev  InputCapture
	sink Sink
	cfg  CaptureConfig
	log  *zap.Logger

	mu      sync.Mutex
	screenW int
	screenH int
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCaptureManager creates a capture manager over dev.
func NewCaptureManager(dev InputCapture, sink Sink, cfg CaptureConfig, log *zap.Logger) *CaptureManager {
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CaptureManager{
		dev:     dev,
		sink:    sink,
		cfg:     cfg,
		log:     log.Named("capture"),
		screenW: 1920,
		screenH: 1080,
	}
}

// SetTargetSize sets the plane the virtual cursor moves on. It takes effect
// at the next Start.
func (c *CaptureManager) SetTargetSize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	c.mu.Lock()
	c.screenW, c.screenH = w, h
	c.mu.Unlock()
}

// Active reports whether capture is running.
func (c *CaptureManager) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Start grabs the pointer and begins producing events with the virtual
// cursor seeded at the normalized entry point.
func (c *CaptureManager) Start(x, y float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	if err := c.dev.Start(); err != nil {
		return fmt.Errorf("grab pointer: %w", err)
	}

	cursor := NewVirtualCursor(c.screenW, c.screenH, c.cfg.Sensitivity)
	cursor.Place(x, y)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx, c.dev.Events(), cursor, c.done)

	c.log.Info("capture started", zap.Float64("x", x), zap.Float64("y", y))
	return nil
}

// Stop ends capture and releases the grab. Buttons still held are sent up
// first so the target is not left mid-drag. When it returns the sink will not
// be called again.
func (c *CaptureManager) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return nil
	}

	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil

	if err := c.dev.Stop(); err != nil {
		return fmt.Errorf("release pointer: %w", err)
	}
	c.log.Info("capture stopped")
	return nil
}

func (c *CaptureManager) loop(ctx context.Context, events <-chan InputEvent, cursor *VirtualCursor, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	var pdx, pdy int
	returned := false
	held := make(map[protocol.Button]struct{})

	emit := func(ev protocol.MouseEvent) {
		if err := c.sink(ctx, ev); err != nil && ctx.Err() == nil {
			c.log.Debug("event not queued", zap.Stringer("event", ev), zap.Error(err))
		}
	}

	flush := func() {
		if pdx == 0 && pdy == 0 {
			return
		}
		dx, dy := pdx, pdy
		pdx, pdy = 0, 0
		x, y := cursor.Move(dx, dy)
		emit(protocol.Move(x, y, dx, dy))

		if !returned && c.cfg.Crossed != nil && c.cfg.Crossed(x, y, dx, dy) {
			returned = true
			if c.cfg.OnReturnEdge != nil {
				c.cfg.OnReturnEdge()
			}
		}
	}

	release := func() {
		if len(held) == 0 {
			return
		}
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		for b := range held {
			ev := protocol.Click(b, protocol.StateUp)
			if err := c.sink(rctx, ev); err != nil {
				c.log.Warn("held button not released", zap.String("button", string(b)), zap.Error(err))
			}
		}
		clear(held)
	}

	for {
		select {
		case <-ctx.Done():
			release()
			return

		case ev, ok := <-events:
			if !ok {
				c.log.Warn("pointer device closed during capture")
				<-ctx.Done()
				release()
				return
			}
			switch ev.Type {
			case EventMotion:
				pdx += ev.DeltaX
				pdy += ev.DeltaY
			case EventButton:
				flush()
				state := protocol.StateUp
				if ev.Pressed {
					state = protocol.StateDown
					held[ev.Button] = struct{}{}
				} else {
					delete(held, ev.Button)
				}
				emit(protocol.Click(ev.Button, state))
			case EventWheel:
				flush()
				emit(protocol.Scroll(ev.WheelX, ev.WheelY))
			}

		case <-ticker.C:
			flush()
		}
	}
}
