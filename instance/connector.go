package instance

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/risa-org/euph/session"
	"github.com/risa-org/euph/transport"
	"github.com/risa-org/euph/transport/websocket"
)

// Connector establishes a transport and opens a session on it. Failures
// should be *transport.ConnectError so the instance can tell a rejection
// from a transient failure; anything else counts as a network failure.
type Connector interface {
	Connect(ctx context.Context) (*session.Session, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (*session.Session, error)

func (f ConnectorFunc) Connect(ctx context.Context) (*session.Session, error) {
	return f(ctx)
}

// Connector defaults.
const (
	DefaultBaseURL        = "wss://euphoria.leet.nu"
	DefaultConnectTimeout = 10 * time.Second
)

var errNoRoom = errors.New("no room configured")

// RoomConnector dials the websocket endpoint of one room.
type RoomConnector struct {
	// Dialer opens the transport. Nil uses a websocket.Dialer with no
	// cookie jar.
	Dialer transport.Dialer

	// BaseURL is the server root, e.g. wss://euphoria.leet.nu.
	BaseURL string

	Room string

	// Human marks the connection as a person rather than a bot.
	Human bool

	// Timeout bounds the dial, handshake included.
	Timeout time.Duration

	// Session configures every session opened on a successful dial.
	Session session.Config
}

// URL is the endpoint Connect dials.
func (c *RoomConnector) URL() string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u := strings.TrimSuffix(base, "/") + "/room/" + url.PathEscape(c.Room) + "/ws"
	if c.Human {
		u += "?h=1"
	}
	return u
}

func (c *RoomConnector) Connect(ctx context.Context) (*session.Session, error) {
	if c.Room == "" {
		return nil, transport.Rejected(transport.CodeRoomNotFound, errNoRoom)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := c.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}
	t, err := dialer.Dial(ctx, c.URL())
	if err != nil {
		var cerr *transport.ConnectError
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, transport.ClassifyDial(ctx, 0, err)
	}
	return session.Open(t, c.Session), nil
}
