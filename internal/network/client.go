package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"zedlink/internal/protocol"
)

// ClientConfig configures the controller's connection to its target.
type ClientConfig struct {
	Addr             string
	Codec            protocol.Codec
	Info             protocol.ClientInfo
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	KeepAlive        time.Duration
	// Heartbeat is the idle interval after which the sender writes a
	// heartbeat so the target can tell a silent session from a dead one.
	Heartbeat time.Duration
	QueueSize int
	Backoff   Backoff
}

func (c *ClientConfig) applyDefaults() {
	if c.Codec == nil {
		c.Codec = protocol.JSON()
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 15 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
}

// StateFunc observes connection state changes. It runs on the connection
// goroutine and must not call back into the client's blocking methods.
type StateFunc func(state ConnState, session SessionInfo)

// Client owns the outbound connection: it connects, handshakes, reconnects
// with backoff and streams queued pointer events through a single sender.
type Client struct {
	cfg ClientConfig
	log *zap.Logger

	queue      chan protocol.MouseEvent
	connectReq chan struct{}

	mu        sync.Mutex
	state     ConnState
	session   *Session
	streaming bool
	closed    bool
	observers []StateFunc
	nextID    uint64
	stopLoop  context.CancelFunc
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a client. Call Start to begin connecting.
func NewClient(cfg ClientConfig, log *zap.Logger) *Client {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		log:        log.Named("client"),
		queue:      make(chan protocol.MouseEvent, cfg.QueueSize),
		connectReq: make(chan struct{}, 1),
	}
}

// OnState registers an observer for connection state changes.
func (c *Client) OnState(fn StateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Start runs the connection supervisor. With autoConnect false the client
// stays Disconnected until Connect is called.
func (c *Client) Start(ctx context.Context, autoConnect bool) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	if autoConnect {
		c.Connect()
	}
	go func() {
		defer close(done)
		c.supervise(ctx)
	}()
}

// Connect asks the supervisor to start connecting. It does nothing unless
// the client is Disconnected.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != Disconnected || c.stopLoop != nil {
		return
	}
	select {
	case c.connectReq <- struct{}{}:
	default:
	}
}

// Disconnect drops the current connection and stops reconnecting until the
// next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	stop := c.stopLoop
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Close stops the client, sending a disconnect notice on a live session.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a snapshot of the current session, if connected.
func (c *Client) Session() (SessionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return SessionInfo{}, false
	}
	return c.session.Info(), true
}

// BeginStreaming allows Enqueue. It fails unless a session is established.
func (c *Client) BeginStreaming() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state != Connected {
		return ErrNotConnected
	}
	c.streaming = true
	return nil
}

// EndStreaming rejects further Enqueue calls. Events already queued are
// still sent.
func (c *Client) EndStreaming() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = false
}

// Enqueue appends an event to the outbound queue, blocking while it is full.
func (c *Client) Enqueue(ctx context.Context, ev protocol.MouseEvent) error {
	c.mu.Lock()
	ok, closed := c.streaming && c.state == Connected, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return ErrNotStreaming
	}

	select {
	case c.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) supervise(ctx context.Context) {
	defer c.setState(Disconnected, nil)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.connectReq:
		}

		runCtx, stop := context.WithCancel(ctx)
		c.mu.Lock()
		c.stopLoop = stop
		c.mu.Unlock()

		c.loop(runCtx)
		stop()

		c.mu.Lock()
		c.stopLoop = nil
		select {
		case <-c.connectReq:
		default:
		}
		c.mu.Unlock()
		c.setState(Disconnected, nil)
	}
}

func (c *Client) loop(ctx context.Context) {
	bo := c.cfg.Backoff
	c.setState(Connecting, nil)

	for {
		established, err := c.runSession(ctx)
		if ctx.Err() != nil {
			return
		}
		if established {
			bo.Reset()
		}

		c.setState(Reconnecting, nil)
		wait := bo.Next()
		c.log.Warn("connection lost, retrying",
			zap.String("target", c.cfg.Addr),
			zap.Duration("backoff", wait),
			zap.Error(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// runSession dials, handshakes and streams until the connection fails.
func (c *Client) runSession(ctx context.Context) (bool, error) {
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout, KeepAlive: c.cfg.KeepAlive}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	defer conn.Close()

	enc := c.cfg.Codec.NewEncoder(conn)
	dec := c.cfg.Codec.NewDecoder(bufio.NewReader(conn))

	ack, err := c.handshake(conn, enc, dec)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.nextID++
	s := &Session{
		ID:      c.nextID,
		Target:  c.cfg.Addr,
		ScreenW: ack.ScreenW,
		ScreenH: ack.ScreenH,
		Since:   time.Now(),
	}
	c.mu.Unlock()

	c.drainQueue()
	c.setState(Connected, s)
	c.log.Info("session established",
		zap.Uint64("session", s.ID),
		zap.String("target", s.Target),
		zap.String("codec", c.cfg.Codec.Name()),
		zap.Int("screen_w", s.ScreenW),
		zap.Int("screen_h", s.ScreenH))

	sessCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 2)
	go func() { errc <- c.sendLoop(sessCtx, ctx, conn, enc, s) }()
	go func() { errc <- c.readLoop(dec) }()

	err = <-errc
	cancel()
	conn.Close()
	<-errc

	c.mu.Lock()
	c.streaming = false
	c.mu.Unlock()
	return true, err
}

func (c *Client) handshake(conn net.Conn, enc protocol.Encoder, dec protocol.Decoder) (*protocol.Message, error) {
	conn.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	if err := enc.Encode(protocol.Handshake(c.cfg.Info)); err != nil {
		return nil, fmt.Errorf("send handshake: %w", err)
	}
	m, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("read handshake ack: %w", err)
	}
	if m.Type != protocol.TypeHandshakeAck {
		return nil, fmt.Errorf("%w: expected handshake_ack, got %s", protocol.ErrMalformed, m.Type)
	}
	if !*m.Accepted {
		return nil, fmt.Errorf("%w: %s", ErrRejected, m.Reason)
	}
	return m, nil
}

// sendLoop is the only writer to conn while the session lives. It writes a
// heartbeat whenever nothing was sent for a full heartbeat interval.
func (c *Client) sendLoop(ctx, clientCtx context.Context, conn net.Conn, enc protocol.Encoder, s *Session) error {
	beat := time.NewTicker(c.cfg.Heartbeat / 2)
	defer beat.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			if clientCtx.Err() != nil {
				conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
				enc.Encode(protocol.Disconnect("controller closing"))
			}
			return ctx.Err()

		case ev := <-c.queue:
			ev.Sequence = s.next()
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := enc.Encode(ev.Message()); err != nil {
				return fmt.Errorf("send %s: %w", ev.Type, err)
			}
			last = time.Now()

		case now := <-beat.C:
			if now.Sub(last) < c.cfg.Heartbeat {
				continue
			}
			conn.SetWriteDeadline(now.Add(c.cfg.WriteTimeout))
			if err := enc.Encode(protocol.Heartbeat()); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
			last = now
		}
	}
}

func (c *Client) readLoop(dec protocol.Decoder) error {
	for {
		m, err := dec.Decode()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				c.log.Warn("malformed message from target", zap.Error(err))
				continue
			}
			return fmt.Errorf("read: %w", err)
		}
		if m.Type == protocol.TypeDisconnect {
			return fmt.Errorf("target closed session: %s", m.Reason)
		}
	}
}

// drainQueue discards events left over from a previous session.
func (c *Client) drainQueue() {
	n := 0
	for {
		select {
		case <-c.queue:
			n++
		default:
			if n > 0 {
				c.log.Debug("discarded stale events", zap.Int("count", n))
			}
			return
		}
	}
}

func (c *Client) setState(st ConnState, s *Session) {
	c.mu.Lock()
	if c.state == st && c.session == s {
		c.mu.Unlock()
		return
	}
	c.state = st
	c.session = s
	if st != Connected {
		c.streaming = false
	}
	observers := append([]StateFunc(nil), c.observers...)
	info := s.Info()
	c.mu.Unlock()

	c.log.Debug("state changed", zap.Stringer("state", st))
	for _, fn := range observers {
		fn(st, info)
	}
}
