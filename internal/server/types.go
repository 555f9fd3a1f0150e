// Package server defines small helpers shared by the client and hub logic.
package server

import (
	"context"
	"errors"
	"strings"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// Session outcomes reported to the Observer.
const (
	outcomeDisconnect = "disconnect"
	outcomeShutdown   = "shutdown"
	outcomeRejected   = "rejected"
	outcomeError      = "error"
)

func sessionOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeDisconnect
	case errors.Is(err, context.Canceled):
		return outcomeShutdown
	case errors.Is(err, relay.ErrEmptyIdentifier):
		return outcomeRejected
	default:
		return outcomeError
	}
}

// Observer receives relay events plus session lifetimes.
type Observer interface {
	relay.Observer
	SessionStarted()
	SessionEnded(outcome string)
}

type nopObserver struct{ relay.NopObserver }

func (nopObserver) SessionStarted()     {}
func (nopObserver) SessionEnded(string) {}
