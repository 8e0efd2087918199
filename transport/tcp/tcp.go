package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/risa-org/euph/transport"
)

// MaxFrameSize bounds a single frame so a corrupt length prefix cannot make
// the reader allocate unbounded memory.
const MaxFrameSize = 16 << 20

var errFrameTooLarge = errors.New("frame exceeds maximum size")

// Adapter implements transport.Adapter over a raw stream connection.
//
// Wire format for each frame:
//
//	[4 bytes: payload length uint32 big-endian][N bytes: payload]
//
// Streams have no message boundaries, so each text frame is length
// prefixed. Works over TCP, unix sockets and net.Pipe alike.
type Adapter struct {
	conn       net.Conn
	incoming   chan []byte
	disconnect chan transport.DisconnectEvent
	closeOnce  sync.Once
	closed     chan struct{}
	writeMu    sync.Mutex // one writer at a time, a frame must not interleave
}

// New wraps an existing net.Conn in a transport Adapter.
// The conn must already be established; dialing or accepting happens outside.
func New(conn net.Conn) *Adapter {
	a := &Adapter{
		conn:       conn,
		incoming:   make(chan []byte, 64),
		disconnect: make(chan transport.DisconnectEvent, 1),
		closed:     make(chan struct{}),
	}
	go a.readLoop()
	return a
}

// Send writes one length-prefixed frame. A context deadline becomes the
// write deadline of the connection.
func (a *Adapter) Send(ctx context.Context, frame []byte) error {
	select {
	case <-a.closed:
		return transport.ErrTransportClosed
	default:
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		a.conn.SetWriteDeadline(deadline)
		defer a.conn.SetWriteDeadline(time.Time{})
	}

	buf := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(frame)))
	copy(buf[4:], frame)
	if _, err := a.conn.Write(buf); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrTransportClosed, err)
	}
	return nil
}

func (a *Adapter) Receive() <-chan []byte {
	return a.incoming
}

func (a *Adapter) Disconnected() <-chan transport.DisconnectEvent {
	return a.disconnect
}

// Close shuts down the connection. Safe to call multiple times.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closed)
		err = a.conn.Close()
	})
	return err
}

func (a *Adapter) readLoop() {
	defer func() {
		close(a.incoming)
		a.Close()
	}()

	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(a.conn, lenBuf[:]); err != nil {
			a.signalDisconnect(err)
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > MaxFrameSize {
			a.send(transport.DisconnectEvent{Reason: transport.ReasonProtocolError, Err: errFrameTooLarge})
			return
		}

		frame := make([]byte, n)
		if _, err := io.ReadFull(a.conn, frame); err != nil {
			a.signalDisconnect(err)
			return
		}

		select {
		case a.incoming <- frame:
		case <-a.closed:
			a.signalDisconnect(nil)
			return
		}
	}
}

// signalDisconnect figures out the reason for disconnection and
// sends exactly one event on the disconnect channel.
func (a *Adapter) signalDisconnect(err error) {
	event := transport.DisconnectEvent{}

	var netErr net.Error
	select {
	case <-a.closed:
		event.Reason = transport.ReasonClosedClean
	default:
		switch {
		case err == nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe):
			event.Reason = transport.ReasonClosedClean
		case errors.As(err, &netErr) && netErr.Timeout():
			event.Reason = transport.ReasonTimeout
			event.Err = err
		default:
			event.Reason = transport.ReasonNetworkError
			event.Err = err
		}
	}

	a.send(event)
}

func (a *Adapter) send(event transport.DisconnectEvent) {
	select {
	case a.disconnect <- event:
	default:
	}
}
