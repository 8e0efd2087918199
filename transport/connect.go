package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Rejection codes attached to ConnectRejected errors.
const (
	CodeRoomNotFound = "room_not_found"
	CodeForbidden    = "forbidden"
)

// ConnectKind classifies why establishing a connection failed.
type ConnectKind int

const (
	ConnectNetwork  ConnectKind = iota // DNS, refused, reset, bad handshake
	ConnectRejected                    // server refused us, retrying won't help
	ConnectTimeout                     // gave up waiting
)

func (k ConnectKind) String() string {
	switch k {
	case ConnectRejected:
		return "rejected"
	case ConnectTimeout:
		return "timeout"
	default:
		return "network"
	}
}

// ConnectError is returned by connectors. Only ConnectRejected is
// terminal; the other kinds are worth retrying.
type ConnectError struct {
	Kind ConnectKind
	Code string // set for ConnectRejected
	Err  error
}

func (e *ConnectError) Error() string {
	msg := "connect " + e.Kind.String()
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Rejected builds a terminal ConnectError with the given code.
func Rejected(code string, err error) *ConnectError {
	return &ConnectError{Kind: ConnectRejected, Code: code, Err: err}
}

// IsRejected reports whether err carries a ConnectRejected error and
// returns its code.
func IsRejected(err error) (string, bool) {
	var cerr *ConnectError
	if errors.As(err, &cerr) && cerr.Kind == ConnectRejected {
		return cerr.Code, true
	}
	return "", false
}

// ClassifyDial maps a failed websocket dial onto a ConnectError. status is
// the HTTP status of the handshake response, or 0 if there was none.
func ClassifyDial(ctx context.Context, status int, err error) *ConnectError {
	switch {
	case status == http.StatusNotFound:
		return Rejected(CodeRoomNotFound, err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return Rejected(CodeForbidden, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ConnectError{Kind: ConnectTimeout, Err: err}
	case status != 0:
		return &ConnectError{Kind: ConnectNetwork, Err: fmt.Errorf("handshake status %d: %w", status, err)}
	default:
		return &ConnectError{Kind: ConnectNetwork, Err: err}
	}
}
