package relay

import (
	"context"
	"errors"
)

var (
	// ErrConnClosed is returned by Conn.Send once the connection is closed.
	ErrConnClosed = errors.New("relay: connection closed")

	// ErrSendBufferFull is returned by Conn.Send when the outbound queue of a
	// stalled peer stayed full for the transport's bounded wait. The
	// transport closes such a peer, so its session leaves the room.
	ErrSendBufferFull = errors.New("relay: send buffer full")

	// ErrEmptyIdentifier is returned by Session.Run when empty identifiers
	// are rejected and the room or client identifier is empty.
	ErrEmptyIdentifier = errors.New("relay: empty room or client identifier")
)

// InboundKind tags the result of Conn.Receive.
type InboundKind int

const (
	// KindMessage carries a text payload in Inbound.Text.
	KindMessage InboundKind = iota
	// KindDisconnect reports that the connection is gone. Inbound.Err holds
	// the cause when one is known.
	KindDisconnect
)

func (k InboundKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Inbound is one result of Conn.Receive: either a message or a disconnect.
type Inbound struct {
	Kind InboundKind
	Text string
	Err  error
}

// Message builds an Inbound carrying text.
func Message(text string) Inbound {
	return Inbound{Kind: KindMessage, Text: text}
}

// Disconnect builds an Inbound reporting the end of the connection.
func Disconnect(err error) Inbound {
	return Inbound{Kind: KindDisconnect, Err: err}
}

// Conn is one client's bidirectional text channel.
//
// Send must not block for long: implementations queue the frame or fail.
// Receive blocks until the next inbound frame, a disconnect, or ctx is done;
// after it has reported KindDisconnect every later call reports it again.
// Close releases the transport and may be called more than once.
type Conn interface {
	Send(text string) error
	Receive(ctx context.Context) Inbound
	Close() error
}

// Member is one entry of a room snapshot.
type Member struct {
	ClientID string
	Conn     Conn
}
