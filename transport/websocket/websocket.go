package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/risa-org/euph/transport"
	"nhooyr.io/websocket"
)

// DefaultReadLimit bounds a single incoming frame. Snapshots with a full
// log page are far larger than the library's 32 KiB default.
const DefaultReadLimit = 4 << 20

// Adapter implements transport.Adapter over a WebSocket connection.
// Every frame is one text message; WebSocket already has message
// boundaries, so no extra framing is needed.
type Adapter struct {
	conn       *websocket.Conn
	incoming   chan []byte
	disconnect chan transport.DisconnectEvent
	closeOnce  sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
}

// New wraps an existing *websocket.Conn in a transport Adapter.
func New(conn *websocket.Conn) *Adapter {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter{
		conn:       conn,
		incoming:   make(chan []byte, 64),
		disconnect: make(chan transport.DisconnectEvent, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	go a.readLoop()
	return a
}

func (a *Adapter) Send(ctx context.Context, frame []byte) error {
	if a.ctx.Err() != nil {
		return transport.ErrTransportClosed
	}
	if err := a.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		if a.ctx.Err() != nil {
			return transport.ErrTransportClosed
		}
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
		a.cancel()
		err = a.conn.Close(websocket.StatusNormalClosure, "closed")
	})
	return err
}

func (a *Adapter) readLoop() {
	defer func() {
		close(a.incoming)
		a.Close()
	}()

	for {
		typ, data, err := a.conn.Read(a.ctx)
		if err != nil {
			a.signalDisconnect(err)
			return
		}
		if typ != websocket.MessageText {
			a.send(transport.DisconnectEvent{
				Reason: transport.ReasonProtocolError,
				Err:    transport.ErrBinaryFrame,
			})
			return
		}
		select {
		case a.incoming <- data:
		case <-a.ctx.Done():
			a.signalDisconnect(a.ctx.Err())
			return
		}
	}
}

// signalDisconnect sends exactly one disconnect event.
// StatusNormalClosure (1000) and StatusGoingAway (1001) are both clean closes.
// Different WebSocket implementations and shutdown timing produce either code.
// Context cancellation means we closed it ourselves, which is also clean.
func (a *Adapter) signalDisconnect(err error) {
	event := transport.DisconnectEvent{}

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure,
		status == websocket.StatusGoingAway,
		a.ctx.Err() != nil:
		event.Reason = transport.ReasonClosedClean
	case errors.Is(err, context.DeadlineExceeded):
		event.Reason = transport.ReasonTimeout
		event.Err = err
	default:
		event.Reason = transport.ReasonNetworkError
		event.Err = err
	}

	a.send(event)
}

func (a *Adapter) send(event transport.DisconnectEvent) {
	select {
	case a.disconnect <- event:
	default:
	}
}

// Dialer opens room connections with nhooyr.io/websocket.
type Dialer struct {
	// Jar stores the agent cookie the server hands out, so reconnects keep
	// the same identity. Optional.
	Jar http.CookieJar
	// Header is sent with the opening handshake.
	Header http.Header
	// ReadLimit overrides DefaultReadLimit when positive.
	ReadLimit int64
}

func (d *Dialer) Dial(ctx context.Context, url string) (transport.Adapter, error) {
	opts := &websocket.DialOptions{HTTPHeader: d.Header}
	if d.Jar != nil {
		opts.HTTPClient = &http.Client{Jar: d.Jar}
	}

	conn, resp, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, transport.ClassifyDial(ctx, status, err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	return New(conn), nil
}
