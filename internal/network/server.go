package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"zedlink/internal/protocol"
)

// Takeover policies for a handshake that arrives while a peer is active.
const (
	TakeoverReject  = "reject"
	TakeoverReplace = "replace"
)

// Actuator executes pointer events on the target.
type Actuator interface {
	Execute(ev protocol.MouseEvent) error
	ScreenSize() (w, h int)
}

// ServerConfig configures the target's listener.
type ServerConfig struct {
	Addr             string
	Takeover         string
	HandshakeTimeout time.Duration
	KeepAlive        time.Duration
	// IdleTimeout drops a peer that sent nothing, not even a heartbeat,
	// for this long. The slot is then free for the next controller.
	IdleTimeout time.Duration
}

// PeerInfo describes the accepted controller.
type PeerInfo struct {
	ID        uint64              `json:"id"`
	Remote    string              `json:"remote"`
	Client    protocol.ClientInfo `json:"client"`
	Codec     string              `json:"codec"`
	Since     time.Time           `json:"since"`
	LastSeq   uint64              `json:"last_sequence"`
	Applied   uint64              `json:"applied"`
	Dropped   uint64              `json:"dropped"`
	Malformed uint64              `json:"malformed"`
}

type peer struct {
	id     uint64
	conn   net.Conn
	client protocol.ClientInfo
	codec  string
	since  time.Time

	// held is only touched by the peer's receive goroutine.
	held map[protocol.Button]struct{}

	lastSeq   atomic.Uint64
	applied   atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

func (p *peer) info() PeerInfo {
	return PeerInfo{
		ID:        p.id,
		Remote:    p.conn.RemoteAddr().String(),
		Client:    p.client,
		Codec:     p.codec,
		Since:     p.since,
		LastSeq:   p.lastSeq.Load(),
		Applied:   p.applied.Load(),
		Dropped:   p.dropped.Load(),
		Malformed: p.malformed.Load(),
	}
}

// Server accepts controller connections and applies the events of the single
// active one, in arrival order.
type Server struct {
	cfg ServerConfig
	act Actuator
	log *zap.Logger

	mu      sync.Mutex
	ln      net.Listener
	active  *peer
	conns   map[net.Conn]struct{}
	nextID  uint64
	onPeer  []func(PeerInfo, bool)
	wg      sync.WaitGroup
	closing bool
}

// NewServer creates a target server.
func NewServer(cfg ServerConfig, act Actuator, log *zap.Logger) *Server {
	if cfg.Takeover != TakeoverReplace {
		cfg.Takeover = TakeoverReject
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, act: act, log: log.Named("server"), conns: make(map[net.Conn]struct{})}
}

// OnPeer registers an observer called when a controller is accepted
// (connected=true) or leaves.
func (s *Server) OnPeer(fn func(info PeerInfo, connected bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPeer = append(s.onPeer, fn)
}

// ActivePeer returns the accepted controller, if any.
func (s *Server) ActivePeer() (PeerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return PeerInfo{}, false
	}
	return s.active.info(), true
}

// Addr returns the listen address once serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := net.ListenConfig{KeepAlive: s.cfg.KeepAlive}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()), zap.String("takeover", s.cfg.Takeover))

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.closing = true
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.log.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
			}()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	log := s.log.With(zap.String("remote", conn.RemoteAddr().String()))

	conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	br := bufio.NewReader(conn)
	codec, err := protocol.Detect(br)
	if err != nil {
		log.Debug("connection closed before handshake", zap.Error(err))
		return
	}
	dec := codec.NewDecoder(br)
	enc := codec.NewEncoder(conn)

	m, err := dec.Decode()
	if err != nil {
		log.Warn("handshake failed", zap.Error(err))
		return
	}
	if m.Type != protocol.TypeHandshake {
		log.Warn("expected handshake", zap.String("type", string(m.Type)))
		return
	}

	p := &peer{conn: conn, codec: codec.Name(), since: time.Now(), held: make(map[protocol.Button]struct{})}
	if m.ClientInfo != nil {
		p.client = *m.ClientInfo
	}

	w, h := s.act.ScreenSize()
	replaced, ok := s.admit(p)
	if !ok {
		log.Warn("rejected controller, session already active", zap.String("client", p.client.Name))
		enc.Encode(protocol.Ack(false, "busy", w, h))
		return
	}
	if replaced != nil {
		log.Info("replacing active controller", zap.Uint64("previous", replaced.id))
		replaced.conn.Close()
	}
	defer s.release(p)

	if err := enc.Encode(protocol.Ack(true, "", w, h)); err != nil {
		log.Warn("send handshake ack failed", zap.Error(err))
		return
	}
	conn.SetDeadline(time.Time{})

	log.Info("controller accepted",
		zap.Uint64("peer", p.id),
		zap.String("client", p.client.Name),
		zap.String("codec", p.codec))
	s.notify(p, true)

	err = s.receive(p, dec, log)
	s.releaseHeld(p, log)
	log.Info("controller left", zap.Uint64("peer", p.id), zap.Error(err))
}

// releaseHeld lifts every button the departed peer left pressed.
func (s *Server) releaseHeld(p *peer, log *zap.Logger) {
	for b := range p.held {
		if err := s.act.Execute(protocol.Click(b, protocol.StateUp)); err != nil {
			log.Warn("release held button failed", zap.String("button", string(b)), zap.Error(err))
			continue
		}
		log.Debug("released held button", zap.String("button", string(b)))
	}
	clear(p.held)
}

// admit makes p the active peer according to the takeover policy.
func (s *Server) admit(p *peer) (replaced *peer, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, false
	}
	if s.active != nil {
		if s.cfg.Takeover != TakeoverReplace {
			return nil, false
		}
		replaced = s.active
	}
	s.nextID++
	p.id = s.nextID
	s.active = p
	return replaced, true
}

func (s *Server) release(p *peer) {
	s.mu.Lock()
	was := s.active == p
	if was {
		s.active = nil
	}
	s.mu.Unlock()
	if was {
		s.notify(p, false)
	}
}

func (s *Server) isActive(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == p
}

func (s *Server) notify(p *peer, connected bool) {
	s.mu.Lock()
	fns := append([]func(PeerInfo, bool){}, s.onPeer...)
	s.mu.Unlock()
	info := p.info()
	for _, fn := range fns {
		fn(info, connected)
	}
}

// receive applies events until the connection ends. Malformed and stale
// messages are dropped without closing the connection; a peer silent for
// IdleTimeout is dropped.
func (s *Server) receive(p *peer, dec protocol.Decoder, log *zap.Logger) error {
	for {
		p.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		m, err := dec.Decode()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				p.malformed.Add(1)
				log.Warn("dropping malformed message", zap.Error(err))
				continue
			}
			return err
		}

		switch m.Type {
		case protocol.TypeDisconnect:
			return nil
		case protocol.TypeHeartbeat:
			continue
		case protocol.TypeHandshake, protocol.TypeHandshakeAck:
			log.Debug("ignoring repeated handshake")
			continue
		}

		ev, err := m.MouseEvent()
		if err != nil {
			p.malformed.Add(1)
			continue
		}
		if ev.Sequence <= p.lastSeq.Load() {
			p.dropped.Add(1)
			log.Debug("dropping stale event", zap.Uint64("seq", ev.Sequence), zap.Uint64("last", p.lastSeq.Load()))
			continue
		}
		if !s.isActive(p) {
			return errors.New("superseded by another controller")
		}
		p.lastSeq.Store(ev.Sequence)

		if err := s.act.Execute(ev); err != nil {
			log.Warn("actuation failed", zap.Stringer("event", ev), zap.Error(err))
			continue
		}
		p.applied.Add(1)
		if ev.Type == protocol.TypeMouseClick {
			if ev.State == protocol.StateDown {
				p.held[ev.Button] = struct{}{}
			} else {
				delete(p.held, ev.Button)
			}
		}
	}
}
