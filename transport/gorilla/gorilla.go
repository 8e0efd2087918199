// Package gorilla implements transport.Adapter on top of
// github.com/gorilla/websocket. It behaves like transport/websocket and
// exists for applications that already standardise on gorilla.
package gorilla

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/risa-org/euph/transport"
)

const closeGrace = time.Second

// Adapter implements transport.Adapter over a gorilla WebSocket connection.
// gorilla allows one concurrent writer, so writes are serialised.
type Adapter struct {
	conn       *websocket.Conn
	incoming   chan []byte
	disconnect chan transport.DisconnectEvent
	closeOnce  sync.Once
	closed     chan struct{}
	writeMu    sync.Mutex
}

// New wraps an established connection and starts reading from it.
func New(conn *websocket.Conn) *Adapter {
	a := &Adapter{
		conn:       conn,
		incoming:   make(chan []byte, 64),
		disconnect: make(chan transport.DisconnectEvent, 1),
		closed:     make(chan struct{}),
	}
	go a.readLoop()
	return a
}

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
	if err := a.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closed)
		a.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closed")
		a.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		a.writeMu.Unlock()
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
		typ, data, err := a.conn.ReadMessage()
		if err != nil {
			a.signalDisconnect(err)
			return
		}
		if typ != websocket.TextMessage {
			a.send(transport.DisconnectEvent{
				Reason: transport.ReasonProtocolError,
				Err:    transport.ErrBinaryFrame,
			})
			return
		}
		select {
		case a.incoming <- data:
		case <-a.closed:
			a.send(transport.DisconnectEvent{Reason: transport.ReasonClosedClean})
			return
		}
	}
}

func (a *Adapter) signalDisconnect(err error) {
	event := transport.DisconnectEvent{}

	var netErr interface{ Timeout() bool }
	select {
	case <-a.closed:
		event.Reason = transport.ReasonClosedClean
	default:
		switch {
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
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

// Dialer opens room connections with gorilla/websocket.
type Dialer struct {
	Jar              http.CookieJar
	Header           http.Header
	HandshakeTimeout time.Duration
	ReadLimit        int64
}

func (d *Dialer) Dial(ctx context.Context, url string) (transport.Adapter, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		Jar:              d.Jar,
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, transport.ClassifyDial(ctx, status, err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return New(conn), nil
}
