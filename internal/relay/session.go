package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is a step of the session state machine.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateReceiving
	StateDispatching
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateReceiving:
		return "receiving"
	case StateDispatching:
		return "dispatching"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DuplicatePolicy decides what happens to the connection that is overwritten
// when a second connection joins a room under an identifier already present.
type DuplicatePolicy int

const (
	// DuplicateKeep leaves the replaced connection open. It no longer
	// receives broadcasts and its session ends when its client goes away.
	DuplicateKeep DuplicatePolicy = iota
	// DuplicateClose closes the replaced connection, ending its session.
	DuplicateClose
)

func (p DuplicatePolicy) String() string {
	if p == DuplicateClose {
		return "close"
	}
	return "keep"
}

// ParseDuplicatePolicy maps "keep" or "close" to a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return DuplicateKeep, nil
	case "close":
		return DuplicateClose, nil
	default:
		return DuplicateKeep, fmt.Errorf("relay: unknown duplicate policy %q", s)
	}
}

// SessionParams are the inputs of NewSession.
type SessionParams struct {
	RoomID      string
	ClientID    string
	Conn        Conn
	Registry    *Registry
	Broadcaster *Broadcaster

	Duplicates     DuplicatePolicy
	RejectEmptyIDs bool
	Logger         *slog.Logger
}

// Session is the lifetime of one connection in one room.
type Session struct {
	id       string
	roomID   string
	clientID string
	conn     Conn
	reg      *Registry
	bc       *Broadcaster

	duplicates     DuplicatePolicy
	rejectEmptyIDs bool
	log            *slog.Logger

	state atomic.Int32
}

// NewSession returns a session in the connecting state. A nil Broadcaster is
// replaced by one reading from p.Registry.
func NewSession(p SessionParams) *Session {
	id := uuid.NewString()
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	bc := p.Broadcaster
	if bc == nil {
		bc = NewBroadcaster(p.Registry, WithLogger(logger))
	}

	return &Session{
		id:             id,
		roomID:         p.RoomID,
		clientID:       p.ClientID,
		conn:           p.Conn,
		reg:            p.Registry,
		bc:             bc,
		duplicates:     p.Duplicates,
		rejectEmptyIDs: p.RejectEmptyIDs,
		log:            logger.With("session", id, "room", p.RoomID, "client", p.ClientID),
	}
}

// ID returns the generated session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run joins the room, relays every inbound message until the connection
// disconnects or ctx is done, then leaves the room. The leave runs exactly
// once on every path out of Run once the join has happened.
//
// Run returns nil for an ordinary disconnect, ctx.Err() when ctx ended the
// session, and ErrEmptyIdentifier when the identifiers were rejected.
func (s *Session) Run(ctx context.Context) error {
	if s.rejectEmptyIDs && (s.roomID == "" || s.clientID == "") {
		s.setState(StateDisconnected)
		return ErrEmptyIdentifier
	}

	s.join()
	defer s.leave()

	// Unblock Receive when ctx ends even if the Conn ignores ctx.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	for {
		s.setState(StateReceiving)
		in := s.conn.Receive(ctx)

		switch in.Kind {
		case KindMessage:
			s.setState(StateDispatching)
			d := s.bc.Broadcast(s.roomID, s.clientID, in.Text)
			s.log.Debug("session.dispatched", "delivered", d.Attempted-d.Failed, "failed", d.Failed)
		case KindDisconnect:
			if err := ctx.Err(); err != nil {
				return err
			}
			if in.Err != nil {
				s.log.Debug("session.disconnect", "err", in.Err)
			}
			return nil
		default:
			s.log.Warn("session.unknown_inbound", "kind", in.Kind)
		}
	}
}

func (s *Session) join() {
	replaced := s.reg.Join(s.roomID, s.clientID, s.conn)
	s.setState(StateJoined)
	s.log.Info("session.joined")

	if replaced == nil || replaced == s.conn {
		return
	}
	s.log.Info("session.replaced_duplicate", "policy", s.duplicates)
	if s.duplicates == DuplicateClose {
		if err := replaced.Close(); err != nil {
			s.log.Debug("session.close_replaced_failed", "err", err)
		}
	}
}

func (s *Session) leave() {
	s.setState(StateDisconnected)
	if s.reg.Release(s.roomID, s.clientID, s.conn) {
		s.log.Info("session.left")
		return
	}
	s.log.Info("session.left", "replaced", true)
}
