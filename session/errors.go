package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed matches every error a closed session hands out.
	// The concrete value is a *ClosedError carrying the reason.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrKeepaliveTimedOut means the server stopped pinging us, or stopped
	// answering our pings.
	ErrKeepaliveTimedOut = errors.New("keepalive timed out")

	// ErrProtocolViolation means the server sent something no conforming
	// server would: a reply nobody asked for, a reply without an id, or a
	// command packet.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrCommandTimedOut is returned by Pending.Wait when the reply did not
	// arrive within the command timeout. The session stays open.
	ErrCommandTimedOut = errors.New("command timed out")

	// ErrUnexpectedReply is returned by Pending.Wait when the reply's type
	// does not answer the command that was sent.
	ErrUnexpectedReply = errors.New("unexpected reply type")

	// ErrClosedByClient is the close reason when Close is called locally.
	ErrClosedByClient = errors.New("closed by client")
)

// ClosedError is returned for work that could not complete because the
// session ended. Reason is the error that ended it.
type ClosedError struct {
	Reason error
}

func (e *ClosedError) Error() string {
	if e.Reason == nil {
		return ErrConnectionClosed.Error()
	}
	return fmt.Sprintf("%v: %v", ErrConnectionClosed, e.Reason)
}

func (e *ClosedError) Is(target error) bool {
	return target == ErrConnectionClosed
}

func (e *ClosedError) Unwrap() error {
	return e.Reason
}
