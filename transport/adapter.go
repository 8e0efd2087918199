package transport

import (
	"context"
	"errors"
)

// ErrTransportClosed is returned when you try to send on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// ErrBinaryFrame is reported when the remote side sends a binary frame.
// The protocol is text-only, so this always ends the transport.
var ErrBinaryFrame = errors.New("received binary frame")

// DisconnectReason tells the session layer why a transport closed.
type DisconnectReason int

const (
	ReasonUnknown       DisconnectReason = iota // catch-all, should be rare
	ReasonNetworkError                          // underlying connection failed
	ReasonTimeout                               // no activity within deadline
	ReasonClosedClean                           // graceful shutdown by either side
	ReasonProtocolError                         // remote violated framing rules
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNetworkError:
		return "network error"
	case ReasonTimeout:
		return "timeout"
	case ReasonClosedClean:
		return "closed"
	case ReasonProtocolError:
		return "protocol error"
	default:
		return "unknown"
	}
}

// DisconnectEvent is sent on the channel returned by Disconnected().
// It bundles the reason with an optional error for debugging.
type DisconnectEvent struct {
	Reason DisconnectReason
	Err    error // nil on clean close, populated on errors
}

// Error turns the event into an error suitable as a session closure reason.
func (e DisconnectEvent) Error() error {
	if e.Err != nil {
		return &DisconnectError{Reason: e.Reason, Err: e.Err}
	}
	return &DisconnectError{Reason: e.Reason, Err: ErrTransportClosed}
}

// DisconnectError is the closure reason of a session whose transport went
// away underneath it.
type DisconnectError struct {
	Reason DisconnectReason
	Err    error
}

func (e *DisconnectError) Error() string {
	return "transport " + e.Reason.String() + ": " + e.Err.Error()
}

func (e *DisconnectError) Unwrap() error { return e.Err }

// Adapter is the contract every transport must satisfy. A transport moves
// whole text frames; it never looks inside them.
type Adapter interface {
	// Send writes one frame. Returns ErrTransportClosed if the transport is
	// no longer active.
	Send(ctx context.Context, frame []byte) error

	// Receive returns a channel of incoming frames in arrival order.
	// The channel is closed when the transport closes.
	Receive() <-chan []byte

	// Disconnected emits exactly one DisconnectEvent when the transport
	// closes, for any reason.
	Disconnected() <-chan DisconnectEvent

	// Close shuts down the transport. Safe to call multiple times.
	Close() error
}

// Dialer establishes a transport to a room endpoint. Implementations
// report failures as *ConnectError.
type Dialer interface {
	Dial(ctx context.Context, url string) (Adapter, error)
}
