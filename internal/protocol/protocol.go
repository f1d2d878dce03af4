// Package protocol defines the messages exchanged between controller and target
// and the codecs that frame them on a stream connection.
package protocol

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Version is the wire protocol revision carried in the handshake.
const Version = 1

// DefaultPort is the target's default listen port.
const DefaultPort = 9876

// MessageType defines the type of a wire message
type MessageType string

const (
	TypeMouseMove   MessageType = "mouse_move"
	TypeMouseClick  MessageType = "mouse_click"
	TypeMouseScroll MessageType = "mouse_scroll"

	// TypeHandshake is sent by the controller immediately after connecting
	TypeHandshake MessageType = "handshake"

	// TypeHandshakeAck is the target's answer; Accepted=false is followed by close
	TypeHandshakeAck MessageType = "handshake_ack"

	// TypeDisconnect announces an orderly close
	TypeDisconnect MessageType = "disconnect"

	// TypeHeartbeat keeps an idle session alive; it carries no sequence
	TypeHeartbeat MessageType = "heartbeat"
)

// Button names a pointer button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// ButtonState selects which half of a click is carried. The empty state is a
// full press and release.
type ButtonState string

const (
	StateClick ButtonState = ""
	StateDown  ButtonState = "down"
	StateUp    ButtonState = "up"
)

var (
	// ErrMalformed marks a frame that was read completely but could not be
	// decoded or validated. The stream stays usable.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize. The
	// stream cannot be resynchronized afterwards.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// ClientInfo identifies the controller in a handshake.
type ClientInfo struct {
	Name     string `json:"name,omitempty"`
	Platform string `json:"platform,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Message is the flat wire representation of every message type.
// Fields irrelevant to a type are omitted on the wire.
type Message struct {
	Type MessageType `json:"type"`

	X  float64 `json:"x,omitempty"`
	Y  float64 `json:"y,omitempty"`
	DX int     `json:"dx,omitempty"`
	DY int     `json:"dy,omitempty"`

	Button Button      `json:"button,omitempty"`
	State  ButtonState `json:"state,omitempty"`

	ScrollX int `json:"scroll_x,omitempty"`
	ScrollY int `json:"scroll_y,omitempty"`

	Timestamp int64  `json:"timestamp,omitempty"`
	Sequence  uint64 `json:"sequence,omitempty"`

	// handshake
	Version    int         `json:"version,omitempty"`
	ClientInfo *ClientInfo `json:"client_info,omitempty"`

	// handshake_ack
	Accepted *bool  `json:"accepted,omitempty"`
	Reason   string `json:"reason,omitempty"`
	ScreenW  int    `json:"screen_w,omitempty"`
	ScreenH  int    `json:"screen_h,omitempty"`
}

// IsMouse reports whether the message carries a pointer event.
func (m *Message) IsMouse() bool {
	switch m.Type {
	case TypeMouseMove, TypeMouseClick, TypeMouseScroll:
		return true
	}
	return false
}

// Validate checks field ranges for the message type. Failures wrap ErrMalformed.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeMouseMove:
		if !unit(m.X) || !unit(m.Y) {
			return fmt.Errorf("%w: move position (%v, %v) outside [0,1]", ErrMalformed, m.X, m.Y)
		}
	case TypeMouseClick:
		switch m.Button {
		case ButtonLeft, ButtonRight, ButtonMiddle:
		default:
			return fmt.Errorf("%w: unknown button %q", ErrMalformed, m.Button)
		}
		switch m.State {
		case StateClick, StateDown, StateUp:
		default:
			return fmt.Errorf("%w: unknown button state %q", ErrMalformed, m.State)
		}
	case TypeMouseScroll:
	case TypeHandshake, TypeDisconnect, TypeHeartbeat:
		return nil
	case TypeHandshakeAck:
		if m.Accepted == nil {
			return fmt.Errorf("%w: handshake_ack without accepted", ErrMalformed)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
	}
	if m.Sequence == 0 {
		return fmt.Errorf("%w: %s without sequence", ErrMalformed, m.Type)
	}
	return nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Handshake builds the controller's opening message.
func Handshake(info ClientInfo) *Message {
	return &Message{Type: TypeHandshake, Version: Version, ClientInfo: &info, Timestamp: Now()}
}

// Ack builds the target's handshake answer.
func Ack(accepted bool, reason string, screenW, screenH int) *Message {
	return &Message{
		Type:      TypeHandshakeAck,
		Accepted:  &accepted,
		Reason:    reason,
		ScreenW:   screenW,
		ScreenH:   screenH,
		Timestamp: Now(),
	}
}

// Disconnect builds the orderly close notice.
func Disconnect(reason string) *Message {
	return &Message{Type: TypeDisconnect, Reason: reason, Timestamp: Now()}
}

// Heartbeat builds the controller's idle keep-alive.
func Heartbeat() *Message {
	return &Message{Type: TypeHeartbeat, Timestamp: Now()}
}

var epoch = time.Now()

// Now returns monotonic milliseconds since process start.
func Now() int64 {
	return time.Since(epoch).Milliseconds()
}
