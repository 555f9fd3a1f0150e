package relay

import (
	"errors"
	"log/slog"
)

// SelfMessage formats the acknowledgement sent back to the sender.
func SelfMessage(text string) string {
	return "You: " + text
}

// PeerMessage formats the copy of a message delivered to the sender's peers.
func PeerMessage(senderID, text string) string {
	return "Client " + senderID + ": " + text
}

// Delivery summarises one broadcast.
type Delivery struct {
	Attempted int
	Failed    int
}

// Broadcaster fans messages out to the members of a room.
type Broadcaster struct {
	reg *Registry
	log *slog.Logger
	obs Observer
}

// NewBroadcaster returns a Broadcaster reading membership from reg.
func NewBroadcaster(reg *Registry, opts ...Option) *Broadcaster {
	o := applyOptions(opts)
	return &Broadcaster{reg: reg, log: o.logger, obs: o.observer}
}

// Broadcast delivers text to every current member of roomID. The member
// whose identifier equals senderID receives SelfMessage(text); every other
// member receives PeerMessage(senderID, text).
//
// A failed send affects only that member: it is logged and counted, and
// delivery continues with the rest of the snapshot. Broadcasting to a room
// that does not exist does nothing.
func (b *Broadcaster) Broadcast(roomID, senderID, text string) Delivery {
	members := b.reg.MembersOf(roomID)
	if len(members) == 0 {
		return Delivery{}
	}
	b.obs.MessageBroadcast(roomID)

	self := SelfMessage(text)
	peer := PeerMessage(senderID, text)

	var d Delivery
	for _, m := range members {
		out := peer
		if m.ClientID == senderID {
			out = self
		}

		d.Attempted++
		if err := b.send(m.Conn, out); err != nil {
			d.Failed++
			b.obs.SendFailed(roomID)
			b.logSendFailure(roomID, m.ClientID, err)
		}
	}
	return d
}

// send isolates a misbehaving Conn so a panic in one member's transport
// cannot stop delivery to the others.
func (b *Broadcaster) send(c Conn, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanicked
			b.log.Error("broadcast.send_panicked", "panic", r)
		}
	}()
	return c.Send(text)
}

var errPanicked = errors.New("relay: send panicked")

func (b *Broadcaster) logSendFailure(roomID, clientID string, err error) {
	// Stale peers are expected until their own session prunes them.
	if errors.Is(err, ErrConnClosed) {
		b.log.Debug("broadcast.peer_gone", "room", roomID, "client", clientID)
		return
	}
	b.log.Warn("broadcast.send_failed", "room", roomID, "client", clientID, "err", err)
}
