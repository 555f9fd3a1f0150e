package relay

import (
	"io"
	"log/slog"
)

// Observer receives lifecycle and delivery events from the registry and the
// broadcaster. Implementations must be safe for concurrent use.
//
// Registry events are delivered while the lock that orders them is held, so
// a room's RoomOpened always precedes its RoomClosed and a member's
// MemberJoined precedes its MemberLeft. Implementations must return quickly
// and must not call back into the Registry.
type Observer interface {
	RoomOpened(roomID string)
	RoomClosed(roomID string)
	MemberJoined(roomID string)
	MemberLeft(roomID string)
	MessageBroadcast(roomID string)
	SendFailed(roomID string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) RoomOpened(string)       {}
func (NopObserver) RoomClosed(string)       {}
func (NopObserver) MemberJoined(string)     {}
func (NopObserver) MemberLeft(string)       {}
func (NopObserver) MessageBroadcast(string) {}
func (NopObserver) SendFailed(string)       {}

// Option configures a Registry or a Broadcaster.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer Observer
}

func defaultOptions() options {
	return options{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		observer: NopObserver{},
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. A nil logger keeps the discarding default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver sets the event observer. A nil observer keeps NopObserver.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}
