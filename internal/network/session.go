package network

import (
	"errors"
	"sync/atomic"
	"time"
)

var (
	// ErrRejected is returned when the target answers the handshake with
	// accepted=false.
	ErrRejected = errors.New("network: handshake rejected")
	// ErrNotStreaming is returned by Enqueue outside remote mode.
	ErrNotStreaming = errors.New("network: not streaming")
	// ErrNotConnected is returned by BeginStreaming without a session.
	ErrNotConnected = errors.New("network: not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("network: client closed")
)

// ConnState is the controller's view of its link to the target.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Session is one accepted connection and its sequence counter. A new Session
// is created for every successful handshake; sessions are never reused.
type Session struct {
	ID      uint64
	Target  string
	ScreenW int
	ScreenH int
	Since   time.Time

	lastSent atomic.Uint64
}

// next assigns the following sequence number. Only the sender goroutine
// calls it.
func (s *Session) next() uint64 {
	return s.lastSent.Add(1)
}

// Info returns a snapshot safe to hand to other goroutines.
func (s *Session) Info() SessionInfo {
	if s == nil {
		return SessionInfo{}
	}
	return SessionInfo{
		ID:               s.ID,
		Target:           s.Target,
		ScreenW:          s.ScreenW,
		ScreenH:          s.ScreenH,
		Since:            s.Since,
		LastSequenceSent: s.lastSent.Load(),
	}
}

// SessionInfo is a point-in-time copy of a Session.
type SessionInfo struct {
	ID               uint64    `json:"id"`
	Target           string    `json:"target"`
	ScreenW          int       `json:"screen_w"`
	ScreenH          int       `json:"screen_h"`
	Since            time.Time `json:"since"`
	LastSequenceSent uint64    `json:"last_sequence_sent"`
}
