package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

type runningSession struct {
	sess *Session
	conn *fakeConn
	done chan error
}

func startSession(t *testing.T, ctx context.Context, reg *Registry, roomID, clientID string) *runningSession {
	t.Helper()
	return startSessionWith(t, ctx, SessionParams{RoomID: roomID, ClientID: clientID, Registry: reg})
}

func startSessionWith(t *testing.T, ctx context.Context, p SessionParams) *runningSession {
	t.Helper()

	if p.Conn == nil {
		p.Conn = newFakeConn()
	}
	rs := &runningSession{
		sess: NewSession(p),
		conn: p.Conn.(*fakeConn),
		done: make(chan error, 1),
	}
	go func() { rs.done <- rs.sess.Run(ctx) }()

	waitFor(t, func() bool {
		for _, m := range p.Registry.MembersOf(p.RoomID) {
			if m.ClientID == p.ClientID && m.Conn == p.Conn {
				return true
			}
		}
		return false
	}, "session %s/%s to join", p.RoomID, p.ClientID)
	return rs
}

func (rs *runningSession) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-rs.done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("session did not finish")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for "+format, args...)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Scenario: alice and bob in r1, alice says hi.
func TestSessionTwoClientsExchange(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	alice := startSession(t, ctx, reg, "r1", "alice")
	bob := startSession(t, ctx, reg, "r1", "bob")

	alice.conn.deliver("hi")

	if got := bob.conn.waitMessages(1, waitTimeout); len(got) != 1 || got[0] != "Client alice: hi" {
		t.Errorf("bob got %v", got)
	}
	if got := alice.conn.waitMessages(1, waitTimeout); len(got) != 1 || got[0] != "You: hi" {
		t.Errorf("alice got %v", got)
	}

	alice.conn.hangup()
	bob.conn.hangup()
	if err := alice.wait(t); err != nil {
		t.Errorf("alice Run returned %v", err)
	}
	if err := bob.wait(t); err != nil {
		t.Errorf("bob Run returned %v", err)
	}
	if reg.Has("r1") {
		t.Error("r1 should be pruned after both sessions end")
	}
}

// Scenario: alice alone in r1.
func TestSessionAloneInRoom(t *testing.T) {
	reg := NewRegistry()
	alice := startSession(t, context.Background(), reg, "r1", "alice")

	alice.conn.deliver("x")
	if got := alice.conn.waitMessages(1, waitTimeout); len(got) != 1 || got[0] != "You: x" {
		t.Errorf("alice got %v", got)
	}

	alice.conn.hangup()
	if err := alice.wait(t); err != nil {
		t.Errorf("Run returned %v", err)
	}
}

// Scenario: bob disconnects, then alice sends.
func TestSessionPeerDisconnects(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	alice := startSession(t, ctx, reg, "r1", "alice")
	bob := startSession(t, ctx, reg, "r1", "bob")

	bob.conn.hangup()
	if err := bob.wait(t); err != nil {
		t.Fatalf("bob Run returned %v", err)
	}
	if bob.sess.State() != StateDisconnected {
		t.Errorf("bob state = %v, want disconnected", bob.sess.State())
	}

	alice.conn.deliver("hello")
	if got := alice.conn.waitMessages(1, waitTimeout); len(got) != 1 || got[0] != "You: hello" {
		t.Errorf("alice got %v", got)
	}
	if got := bob.conn.messages(); len(got) != 0 {
		t.Errorf("departed bob got %v", got)
	}
	if got := memberIDs(reg.MembersOf("r1")); !equalIDs(got, []string{"alice"}) {
		t.Errorf("r1 members = %v, want [alice]", got)
	}

	alice.conn.hangup()
	_ = alice.wait(t)
	if reg.Has("r1") {
		t.Error("r1 should be absent after alice disconnects")
	}
}

func TestSessionContextCancelLeaves(t *testing.T) {
	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	alice := startSession(t, ctx, reg, "r1", "alice")
	cancel()

	if err := alice.wait(t); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
	if !alice.conn.isClosed() {
		t.Error("cancelled session should close its connection")
	}
	if reg.Has("r1") {
		t.Error("cancelled session should leave its room")
	}
}

func TestSessionRejectsEmptyIdentifiers(t *testing.T) {
	reg := NewRegistry()
	sess := NewSession(SessionParams{
		RoomID:         "",
		ClientID:       "alice",
		Conn:           newFakeConn(),
		Registry:       reg,
		RejectEmptyIDs: true,
	})

	if err := sess.Run(context.Background()); !errors.Is(err, ErrEmptyIdentifier) {
		t.Fatalf("Run returned %v, want ErrEmptyIdentifier", err)
	}
	if reg.Stats().Members != 0 {
		t.Fatal("rejected session must not join")
	}
}

func TestSessionAcceptsEmptyIdentifiersByDefault(t *testing.T) {
	reg := NewRegistry()
	s := startSession(t, context.Background(), reg, "", "")

	s.conn.deliver("ping")
	if got := s.conn.waitMessages(1, waitTimeout); len(got) != 1 || got[0] != "You: ping" {
		t.Errorf("got %v", got)
	}
	s.conn.hangup()
	_ = s.wait(t)
}

func TestSessionDuplicatePolicies(t *testing.T) {
	tests := []struct {
		name        string
		policy      DuplicatePolicy
		closesFirst bool
	}{
		{name: "keep", policy: DuplicateKeep, closesFirst: false},
		{name: "close", policy: DuplicateClose, closesFirst: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			ctx := context.Background()

			first := startSessionWith(t, ctx, SessionParams{RoomID: "r1", ClientID: "alice", Registry: reg, Duplicates: tt.policy})
			second := startSessionWith(t, ctx, SessionParams{RoomID: "r1", ClientID: "alice", Registry: reg, Duplicates: tt.policy})

			if tt.closesFirst {
				if err := first.wait(t); err != nil {
					t.Fatalf("first Run returned %v", err)
				}
			} else {
				time.Sleep(20 * time.Millisecond)
				if first.conn.isClosed() {
					t.Fatal("keep policy must leave the replaced connection open")
				}
				first.conn.hangup()
				_ = first.wait(t)
			}

			// The replaced session's exit must not evict its successor.
			members := reg.MembersOf("r1")
			if len(members) != 1 || members[0].Conn != Conn(second.conn) {
				t.Fatalf("members = %+v, want only the second connection", members)
			}

			second.conn.deliver("still me")
			if got := second.conn.waitMessages(1, waitTimeout); len(got) != 1 || got[0] != "You: still me" {
				t.Errorf("second got %v", got)
			}
			if got := first.conn.messages(); len(got) != 0 {
				t.Errorf("replaced connection got %v", got)
			}

			second.conn.hangup()
			_ = second.wait(t)
			if reg.Has("r1") {
				t.Error("r1 should be pruned")
			}
		})
	}
}

func TestParseDuplicatePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    DuplicatePolicy
		wantErr bool
	}{
		{"", DuplicateKeep, false},
		{"keep", DuplicateKeep, false},
		{" CLOSE ", DuplicateClose, false},
		{"kick", DuplicateKeep, true},
	}
	for _, tt := range tests {
		got, err := ParseDuplicatePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuplicatePolicy(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseDuplicatePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	reg := NewRegistry()
	a := NewSession(SessionParams{RoomID: "r", ClientID: "a", Conn: newFakeConn(), Registry: reg})
	b := NewSession(SessionParams{RoomID: "r", ClientID: "a", Conn: newFakeConn(), Registry: reg})

	if a.ID() == "" || a.ID() == b.ID() {
		t.Fatalf("session ids %q and %q should be distinct and non-empty", a.ID(), b.ID())
	}
	if a.State() != StateConnecting {
		t.Fatalf("new session state = %v, want connecting", a.State())
	}
}
