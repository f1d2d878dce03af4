package edge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"zedlink/internal/trigger"
)

// ErrSamplingStalled is returned by Run when the pointer could not be sampled
// for longer than the configured stall limit.
var ErrSamplingStalled = errors.New("edge: pointer sampling stalled")

// Pointer reports the local cursor position.
type Pointer interface {
	Position() (x, y int, err error)
	ScreenSize() (w, h int)
}

// Config configures a Detector.
type Config struct {
	Edge       Edge
	Delay      time.Duration
	Threshold  int
	Tick       time.Duration
	StallAfter time.Duration
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 2
	}
	if c.Tick <= 0 {
		c.Tick = 10 * time.Millisecond
	}
	if c.StallAfter <= 0 {
		c.StallAfter = 2 * time.Second
	}
}

// Detector samples the pointer on a fixed tick and emits EdgeEnter once the
// pointer has stayed in the edge zone for Delay. It re-arms only after the
// pointer leaves the zone.
type Detector struct {
	ptr  Pointer
	cfg  Config
	emit func(trigger.Event)
	log  *zap.Logger

	mu        sync.Mutex
	paused    bool
	needExit  bool
	inZone    bool
	fired     bool
	enteredAt time.Time
}

// NewDetector creates a detector. emit is called from the sampling goroutine.
func NewDetector(ptr Pointer, cfg Config, emit func(trigger.Event), log *zap.Logger) *Detector {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{ptr: ptr, cfg: cfg, emit: emit, log: log.Named("edge")}
}

// Pause stops edge evaluation, used while control is remote.
func (d *Detector) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
}

// Resume restarts evaluation. The pointer must leave the zone before the
// detector can fire again.
func (d *Detector) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	d.needExit = true
	d.inZone = false
}

// Paused reports whether evaluation is paused.
func (d *Detector) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Step evaluates one sample taken at now.
func (d *Detector) Step(now time.Time, x, y, w, h int) (trigger.Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.paused {
		return trigger.Event{}, false
	}
	if !d.cfg.Edge.InZone(x, y, w, h, d.cfg.Threshold) {
		d.inZone = false
		d.fired = false
		d.needExit = false
		return trigger.Event{}, false
	}
	if d.needExit || d.fired {
		return trigger.Event{}, false
	}
	if !d.inZone {
		d.inZone = true
		d.enteredAt = now
	}
	if now.Sub(d.enteredAt) < d.cfg.Delay {
		return trigger.Event{}, false
	}

	d.fired = true
	ex, ey := d.cfg.Edge.EntryPoint(x, y, w, h)
	return trigger.Event{Kind: trigger.EdgeEnter, At: now, X: ex, Y: ey}, true
}

// Run samples until ctx is cancelled. It returns ErrSamplingStalled if no
// sample succeeds within StallAfter, and an error if sampling panics.
func (d *Detector) Run(ctx context.Context) (err error) {
	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("edge: sampling crashed: %v", r)
		}
	}()

	d.log.Info("edge detector started",
		zap.String("edge", string(d.cfg.Edge)),
		zap.Duration("delay", d.cfg.Delay),
		zap.Duration("tick", d.cfg.Tick))

	lastOK := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if d.Paused() {
				lastOK = now
				continue
			}
			if now.Sub(lastOK) > d.cfg.StallAfter {
				return fmt.Errorf("%w: no sample for %s", ErrSamplingStalled, now.Sub(lastOK).Round(time.Millisecond))
			}

			x, y, perr := d.ptr.Position()
			if perr != nil {
				d.log.Debug("sample failed", zap.Error(perr))
				continue
			}
			lastOK = now

			w, h := d.ptr.ScreenSize()
			if ev, ok := d.Step(now, x, y, w, h); ok {
				d.log.Info("edge dwell reached", zap.Int("x", x), zap.Int("y", y))
				d.emit(ev)
			}
		}
	}
}
