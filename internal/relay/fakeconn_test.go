package relay

import (
	"context"
	"sync"
	"time"
)

// fakeConn is an in-memory Conn. Inbound frames are pushed with deliver and
// the connection is ended with hangup or Close.
type fakeConn struct {
	mu      sync.Mutex
	sent    []string
	closed  bool
	failErr error

	inbound chan string
	done    chan struct{}
	once    sync.Once
	notify  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan string, 16),
		done:    make(chan struct{}),
		notify:  make(chan struct{}, 64),
	}
}

func (c *fakeConn) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failErr != nil {
		return c.failErr
	}
	if c.closed {
		return ErrConnClosed
	}
	c.sent = append(c.sent, text)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) Inbound {
	select {
	case text := <-c.inbound:
		return Message(text)
	case <-c.done:
		return Disconnect(nil)
	case <-ctx.Done():
		return Disconnect(ctx.Err())
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) deliver(text string) { c.inbound <- text }

func (c *fakeConn) hangup() { _ = c.Close() }

func (c *fakeConn) failWith(err error) {
	c.mu.Lock()
	c.failErr = err
	c.mu.Unlock()
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// waitMessages waits until at least n messages were sent to c.
func (c *fakeConn) waitMessages(n int, timeout time.Duration) []string {
	deadline := time.After(timeout)
	for {
		if got := c.messages(); len(got) >= n {
			return got
		}
		select {
		case <-c.notify:
		case <-deadline:
			return c.messages()
		}
	}
}

type panicConn struct{ *fakeConn }

func (*panicConn) Send(string) error { panic("boom") }

// countingObserver records observer events.
type countingObserver struct {
	mu     sync.Mutex
	events map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{events: make(map[string]int)}
}

func (o *countingObserver) inc(name string) {
	o.mu.Lock()
	o.events[name]++
	o.mu.Unlock()
}

func (o *countingObserver) count(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[name]
}

func (o *countingObserver) RoomOpened(string)       { o.inc("room_opened") }
func (o *countingObserver) RoomClosed(string)       { o.inc("room_closed") }
func (o *countingObserver) MemberJoined(string)     { o.inc("member_joined") }
func (o *countingObserver) MemberLeft(string)       { o.inc("member_left") }
func (o *countingObserver) MessageBroadcast(string) { o.inc("message") }
func (o *countingObserver) SendFailed(string)       { o.inc("send_failed") }
