// Package session runs one live connection to a room.
//
// A Session owns a transport.Adapter for its whole life. It numbers
// outgoing commands, matches replies back to their callers, answers the
// server's pings, sends its own, and hands every packet to the consumer in
// arrival order. A Session never reconnects: once it closes it is done, and
// the instance package starts a fresh one.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/risa-org/euph/packet"
	"github.com/risa-org/euph/transport"
)

// Defaults applied by Open to zero Config fields.
const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultIdleTimeout    = 60 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultEventBuffer    = 10
)

// Config tunes a Session. The zero value is usable.
type Config struct {
	// CommandTimeout bounds Pending.Wait when the caller's context has no
	// deadline of its own.
	CommandTimeout time.Duration

	// PingInterval is how often we ping the server. If the previous ping
	// is still unanswered at the next tick the session closes.
	// Negative disables client pings.
	PingInterval time.Duration

	// IdleTimeout closes the session if no ping-event arrives in time.
	// Negative disables the check.
	IdleTimeout time.Duration

	// PongTimeout bounds writing the ping-reply to a ping-event.
	PongTimeout time.Duration

	// WriteTimeout bounds writing a command frame.
	WriteTimeout time.Duration

	// EventBuffer is how many packets may queue for Events before the
	// session stops reading from the transport.
	EventBuffer int

	// Logger receives session diagnostics. Nil disables logging.
	Logger *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}

// State is where a session is in its short life.
type State int

const (
	StateOpen   State = iota // 0 - reading and writing
	StateClosed              // 1 - terminal, Err reports why
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live connection. All of its mutable state is owned by a
// single goroutine, so the exported methods only talk to it over channels.
type Session struct {
	cfg       Config
	log       zerolog.Logger
	transport transport.Adapter
	openedAt  time.Time

	requests chan *request
	closeReq chan error
	events   chan *packet.Packet
	done     chan struct{}

	err error // written once before done closes
}

// request hands a numbered-to-be packet to the actor.
type request struct {
	packet *packet.Packet
	ready  chan *Pending // actor always answers exactly once
}

// Open starts a session on an established transport. The session takes
// ownership of t and closes it when the session ends.
func Open(t transport.Adapter, cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "session").Logger(),
		transport: t,
		openedAt:  time.Now(),
		requests:  make(chan *request),
		closeReq:  make(chan error),
		events:    make(chan *packet.Packet),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// OpenedAt is when Open was called.
func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

// State reports whether the session is still open.
func (s *Session) State() State {
	select {
	case <-s.done:
		return StateClosed
	default:
		return StateOpen
	}
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is the reason the session ended, or nil while it is open.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Events yields every packet the server sent in arrival order: events,
// including ping-events after they have been answered, and replies after
// their caller has been resolved. Replies to our own keepalive pings are
// not included. The channel is closed after the session ends and the
// queued packets have been delivered, so it must be drained.
func (s *Session) Events() <-chan *packet.Packet {
	return s.events
}

// Submit sends cmd and returns a handle for its reply without waiting for
// the reply to arrive.
func (s *Session) Submit(ctx context.Context, cmd packet.Command) (*Pending, error) {
	return s.SubmitRaw(ctx, cmd.PacketType(), cmd)
}

// SubmitRaw is Submit for callers that build the payload themselves.
// data may be nil for commands without parameters.
func (s *Session) SubmitRaw(ctx context.Context, t packet.Type, data any) (*Pending, error) {
	p, err := packet.NewCommand(t, data)
	if err != nil {
		return nil, err
	}

	req := &request{packet: p, ready: make(chan *Pending, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return nil, &ClosedError{Reason: s.err}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Once the actor has the request it answers without blocking on I/O
	// longer than the write timeout.
	return <-req.ready, nil
}

// Send submits cmd and waits for its reply.
func (s *Session) Send(ctx context.Context, cmd packet.Command) (*packet.Packet, error) {
	pending, err := s.Submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

// Close ends the session with ErrClosedByClient and waits for it to stop.
// Safe to call multiple times.
func (s *Session) Close() error {
	return s.CloseWithError(ErrClosedByClient)
}

// CloseWithError ends the session with the given reason. If the session
// already ended, the original reason is kept.
func (s *Session) CloseWithError(reason error) error {
	if reason == nil {
		reason = ErrClosedByClient
	}
	select {
	case s.closeReq <- reason:
	case <-s.done:
	}
	<-s.done
	return nil
}

// Pending is the caller's half of an in-flight command.
type Pending struct {
	ID      uint64
	Type    packet.Type
	result  chan result
	timeout time.Duration
}

// Wait blocks until the reply arrives, ctx is done, or the command times
// out. A reply carrying an error is returned together with a
// *packet.ServerError. Abandoning Wait does not disturb the session: a
// late reply is still matched against its id.
func (p *Pending) Wait(ctx context.Context) (*packet.Packet, error) {
	if _, ok := ctx.Deadline(); !ok && p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	select {
	case res := <-p.result:
		if res.err != nil {
			return nil, res.err
		}
		reply := res.reply
		if reply.Type != p.Type.Reply() {
			return reply, fmt.Errorf("%w: sent %s, got %s", ErrUnexpectedReply, p.Type, reply.Type)
		}
		if reply.Error != "" {
			return reply, &packet.ServerError{Type: reply.Type, Message: reply.Error}
		}
		return reply, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s (id %d)", ErrCommandTimedOut, p.Type, p.ID)
		}
		return nil, ctx.Err()
	}
}
