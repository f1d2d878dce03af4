// Package switcher owns the control mode and arbitrates every request to
// change it.
package switcher

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"zedlink/internal/network"
	"zedlink/internal/trigger"
)

// Mode is which host currently owns the pointer.
type Mode int

const (
	Local Mode = iota
	Remote
)

func (m Mode) String() string {
	if m == Remote {
		return "remote"
	}
	return "local"
}

// ErrStopped is returned by Publish after Run has returned.
var ErrStopped = errors.New("switcher: stopped")

// Capture is the local pointer capture driven on mode changes.
type Capture interface {
	Start(x, y float64) error
	Stop() error
	SetTargetSize(w, h int)
}

// Stream gates the outbound event stream.
type Stream interface {
	BeginStreaming() error
	EndStreaming()
}

// Detector is the edge detector paused while remote.
type Detector interface {
	Pause()
	Resume()
}

type signal struct {
	trigger *trigger.Event
	conn    *connChange
}

type connChange struct {
	state   network.ConnState
	session network.SessionInfo
}

// Switcher is the single writer of the control mode. Triggers and connection
// changes are queued and applied one batch at a time by Run.
type Switcher struct {
	capture  Capture
	stream   Stream
	detector Detector
	log      *zap.Logger

	signals chan signal
	done    chan struct{}

	// owned by Run
	connected bool

	mu           sync.RWMutex
	mode         Mode
	onModeChange []func(Mode, string)
}

// New creates a switcher in Local mode.
func New(capture Capture, stream Stream, detector Detector, log *zap.Logger) *Switcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Switcher{
		capture:  capture,
		stream:   stream,
		detector: detector,
		log:      log.Named("switcher"),
		signals:  make(chan signal, 64),
		done:     make(chan struct{}),
	}
}

// OnModeChange registers an observer called after every transition with the
// new mode and its cause.
func (s *Switcher) OnModeChange(callback func(mode Mode, reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onModeChange = append(s.onModeChange, callback)
}

// Mode returns the current mode.
func (s *Switcher) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Publish queues a trigger, blocking while the queue is full.
func (s *Switcher) Publish(ctx context.Context, ev trigger.Event) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.signals <- signal{trigger: &ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// TryPublish queues a trigger without blocking and reports whether it was
// accepted.
func (s *Switcher) TryPublish(ev trigger.Event) bool {
	select {
	case s.signals <- signal{trigger: &ev}:
		return true
	default:
		return false
	}
}

// ConnectionChanged is a network.StateFunc feeding connection state into the
// decision loop.
func (s *Switcher) ConnectionChanged(state network.ConnState, session network.SessionInfo) {
	select {
	case s.signals <- signal{conn: &connChange{state: state, session: session}}:
	case <-s.done:
	}
}

// Run applies queued signals until ctx is cancelled, then forces Local.
func (s *Switcher) Run(ctx context.Context) error {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.enterLocal("shutdown")
			return nil
		case sig := <-s.signals:
			batch := []signal{sig}
		drain:
			for {
				select {
				case more := <-s.signals:
					batch = append(batch, more)
				default:
					break drain
				}
			}
			s.apply(batch)
		}
	}
}

func (s *Switcher) apply(batch []signal) {
	var triggers []trigger.Event
	for _, sig := range batch {
		if sig.conn != nil {
			s.applyConn(*sig.conn)
		}
		if sig.trigger != nil {
			triggers = append(triggers, *sig.trigger)
		}
	}
	if len(triggers) == 0 {
		return
	}

	mode := s.Mode()
	next, cause := Decide(mode, s.connected, triggers)
	if cause == nil || next == mode {
		return
	}
	if next == Remote {
		s.enterRemote(*cause)
	} else {
		s.enterLocal(cause.Kind.String())
	}
}

func (s *Switcher) applyConn(c connChange) {
	connected := c.state == network.Connected
	if connected && c.session.ScreenW > 0 {
		s.capture.SetTargetSize(c.session.ScreenW, c.session.ScreenH)
	}
	if connected == s.connected {
		return
	}
	s.connected = connected
	s.log.Info("connection state", zap.Stringer("state", c.state))
	if !connected && s.Mode() == Remote {
		s.enterLocal("connection " + c.state.String())
	}
}

// Decide picks the transition for a batch of triggers received together.
// Escape always wins. Otherwise the highest priority trigger applicable to the
// current mode is chosen. It returns the resulting mode and the trigger that
// caused it, or nil when nothing applies.
func Decide(mode Mode, connected bool, batch []trigger.Event) (Mode, *trigger.Event) {
	var best *trigger.Event
	for i := range batch {
		ev := &batch[i]
		if !applicable(mode, connected, ev.Kind) {
			continue
		}
		if best == nil || ev.Kind.Priority() > best.Kind.Priority() {
			best = ev
		}
	}
	if best == nil {
		return mode, nil
	}
	if best.Kind == trigger.Escape {
		return Local, best
	}
	if mode == Local {
		return Remote, best
	}
	return Local, best
}

func applicable(mode Mode, connected bool, k trigger.Kind) bool {
	switch k {
	case trigger.Escape:
		return true
	case trigger.HotkeyToggle:
		return mode == Remote || connected
	case trigger.EdgeEnter:
		return mode == Local && connected
	case trigger.ReturnEdge:
		return mode == Remote
	}
	return false
}

func (s *Switcher) enterRemote(cause trigger.Event) {
	x, y := cause.X, cause.Y
	if cause.Kind != trigger.EdgeEnter {
		x, y = 0.5, 0.5
	}

	s.detector.Pause()
	if err := s.stream.BeginStreaming(); err != nil {
		s.log.Warn("cannot enter remote mode", zap.Error(err))
		s.detector.Resume()
		return
	}
	if err := s.capture.Start(x, y); err != nil {
		s.log.Error("pointer capture failed, staying local", zap.Error(err))
		s.stream.EndStreaming()
		s.detector.Resume()
		return
	}
	s.setMode(Remote, cause.Kind.String())
}

func (s *Switcher) enterLocal(reason string) {
	if s.Mode() == Local {
		return
	}
	if err := s.capture.Stop(); err != nil {
		s.log.Warn("releasing capture", zap.Error(err))
	}
	s.stream.EndStreaming()
	s.setMode(Local, reason)
	s.detector.Resume()
}

func (s *Switcher) setMode(m Mode, reason string) {
	s.mu.Lock()
	s.mode = m
	observers := append([]func(Mode, string){}, s.onModeChange...)
	s.mu.Unlock()

	s.log.Info("mode changed", zap.Stringer("mode", m), zap.String("reason", reason))
	for _, fn := range observers {
		fn(m, reason)
	}
}
