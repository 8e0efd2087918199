// Package instance keeps a client in a room across connection failures.
//
// An Instance supervises a sequence of sessions. It connects, drives the
// join handshake, and when a session ends decides whether to try again
// after a backoff delay or to stop for good. Its state is published as a
// stream of Snapshots, and the packets of every session it ever held are
// merged into a single Event stream.
package instance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/risa-org/euph/handshake"
	"github.com/risa-org/euph/packet"
	"github.com/risa-org/euph/room"
	"github.com/risa-org/euph/session"
	"github.com/risa-org/euph/transport"
)

var (
	// ErrNotConnected is returned by Send and Submit outside Connected.
	// Commands are never queued across reconnects.
	ErrNotConnected = errors.New("not connected")

	// ErrStopped is the stop reason after Stop or cancellation of the
	// context passed to Start.
	ErrStopped = errors.New("instance stopped")

	// ErrOutOfJoinAttempts means Config.JoinAttempts sessions were opened
	// and none of them got into the room. It is reported as a rejection.
	ErrOutOfJoinAttempts = errors.New("failed to join within attempt limit")

	errNoConnector = errors.New("no connector configured")
)

// Defaults applied by Start to zero Config fields.
const (
	DefaultJoinAttempts = 5
	DefaultStableAfter  = time.Minute
	DefaultEventBuffer  = 64
)

// Config describes one instance.
type Config struct {
	// ID names the instance in events and logs. Empty generates a UUID.
	ID string

	// Room is reported in snapshots and logs. Empty takes the room of a
	// *RoomConnector.
	Room string

	// Connector opens sessions. Required.
	Connector Connector

	// Join is what the instance brings to the room: nick and passcode.
	Join handshake.Config

	// JoinAttempts is how many sessions may open and close without ever
	// getting into the room before the instance gives up. Connection
	// failures do not count, and the limit no longer applies once the
	// instance has joined. Negative means unlimited.
	JoinAttempts int

	Backoff BackoffConfig

	// StableAfter is how long a session must stay up for the backoff to
	// start over from its initial delay.
	StableAfter time.Duration

	// SnapshotBuffer is each subscriber's queue length.
	SnapshotBuffer int

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int

	Logger *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Room == "" {
		if rc, ok := c.Connector.(*RoomConnector); ok {
			c.Room = rc.Room
		}
	}
	if c.JoinAttempts == 0 {
		c.JoinAttempts = DefaultJoinAttempts
	}
	if c.StableAfter <= 0 {
		c.StableAfter = DefaultStableAfter
	}
	if c.SnapshotBuffer <= 0 {
		c.SnapshotBuffer = DefaultSnapshotBuffer
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

// Instance is a long-lived, self-healing room connection.
type Instance struct {
	cfg       Config
	log       zerolog.Logger
	handshake *handshake.Handler
	startedAt time.Time

	cancel  context.CancelCauseFunc
	done    chan struct{}
	events  chan Event
	primary *Subscription

	// mu guards the current session together with the published snapshot,
	// so no observer can see one without the other.
	mu      sync.Mutex
	snap    Snapshot
	current *session.Session
	subs    map[*Subscription]struct{}
	stopErr error

	// Owned by the supervising goroutine.
	backoff      *monotonicBackOff
	generation   uint64
	retries      int
	joinFailures int
	everJoined   bool
}

// Start launches the supervising goroutine and returns immediately. The
// instance begins in Connecting. Cancelling ctx has the same effect as
// Stop.
func Start(ctx context.Context, cfg Config) (*Instance, error) {
	if cfg.Connector == nil {
		return nil, errNoConnector
	}
	cfg = cfg.withDefaults()

	runCtx, cancel := context.WithCancelCause(ctx)
	log := cfg.Logger.With().Str("instance", cfg.ID).Str("room", cfg.Room).Logger()
	i := &Instance{
		cfg:       cfg,
		log:       log,
		handshake: handshake.NewHandler(cfg.Join, &log),
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		events:    make(chan Event, cfg.EventBuffer),
		subs:      make(map[*Subscription]struct{}),
		backoff:   newBackoff(cfg.Backoff),
	}

	i.mu.Lock()
	i.snap = Snapshot{State: StateConnecting, Room: cfg.Room, Since: i.startedAt}
	i.primary = i.subscribeLocked()
	i.mu.Unlock()

	go i.run(runCtx)
	return i, nil
}

func (i *Instance) ID() string {
	return i.cfg.ID
}

func (i *Instance) Room() string {
	return i.cfg.Room
}

// StartedAt is when Start was called.
func (i *Instance) StartedAt() time.Time {
	return i.startedAt
}

// Snapshots is the subscription created by Start. Its first value is the
// initial Connecting snapshot.
func (i *Instance) Snapshots() <-chan Snapshot {
	return i.primary.C
}

// Subscribe adds an observer whose first value is the current snapshot.
func (i *Instance) Subscribe() *Subscription {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.subscribeLocked()
}

// Snapshot returns the current snapshot.
func (i *Instance) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snap
}

// Events is the merged event stream of every session. It ends with a
// Stopped event and is then closed. It must be drained: a full channel
// holds the supervisor, which in turn stops reading from the session.
func (i *Instance) Events() <-chan Event {
	return i.events
}

// Done is closed once the instance has stopped.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// Err is why the instance stopped, or nil while it runs.
func (i *Instance) Err() error {
	select {
	case <-i.done:
		i.mu.Lock()
		defer i.mu.Unlock()
		return i.stopErr
	default:
		return nil
	}
}

// Wait blocks until the instance stops and returns the reason.
func (i *Instance) Wait() error {
	<-i.done
	return i.Err()
}

// Stop shuts the instance down: the live session is closed, a pending
// backoff is cancelled and the state becomes Stopped with ErrStopped.
// It waits for the supervisor to finish. Safe to call multiple times.
func (i *Instance) Stop() {
	i.cancel(ErrStopped)
	<-i.done
}

// SubmitRaw sends a command on the live session without waiting for the
// reply. It fails with ErrNotConnected unless the instance is Connected.
func (i *Instance) SubmitRaw(ctx context.Context, t packet.Type, data any) (*session.Pending, error) {
	i.mu.Lock()
	sess, state := i.current, i.snap.State
	i.mu.Unlock()

	if state != StateConnected || sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, state)
	}
	pending, err := sess.SubmitRaw(ctx, t, data)
	if errors.Is(err, session.ErrConnectionClosed) {
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return pending, err
}

// Submit is SubmitRaw for a typed command.
func (i *Instance) Submit(ctx context.Context, cmd packet.Command) (*session.Pending, error) {
	return i.SubmitRaw(ctx, cmd.PacketType(), cmd)
}

// Send submits cmd and waits for its reply.
func (i *Instance) Send(ctx context.Context, cmd packet.Command) (*packet.Packet, error) {
	pending, err := i.Submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

func (i *Instance) run(ctx context.Context) {
	last, reason := i.supervise(ctx)

	i.mu.Lock()
	i.transitionLocked(Snapshot{State: StateStopped, Retries: i.retries, Err: reason})
	i.stopErr = reason
	i.mu.Unlock()

	if errors.Is(reason, ErrStopped) {
		i.log.Info().Msg("stopped")
	} else {
		i.log.Error().Err(reason).Msg("stopped")
	}
	close(i.done)

	// The consumer sees the end of the last session before the end of
	// the instance, even if the stop interrupted its delivery.
	if last != nil {
		i.events <- *last
	}
	i.events <- Event{Kind: EventStopped, Instance: i.cfg.ID, Err: reason}
	close(i.events)
}

// supervise runs the reconnect loop until the instance must stop. It
// returns the Disconnected event of the last session if one is still owed
// to the consumer, and the stop reason.
func (i *Instance) supervise(ctx context.Context) (*Event, error) {
	for first := true; ; first = false {
		if !first {
			i.transition(Snapshot{State: StateConnecting, Retries: i.retries})
		}
		if !i.emit(ctx, Event{Kind: EventConnecting, Instance: i.cfg.ID}) {
			return nil, stopReason(ctx)
		}

		var last *Event
		sess, err := i.cfg.Connector.Connect(ctx)
		connected := err == nil
		if connected {
			connectedAt := time.Now()
			last, err = i.serve(ctx, sess)
			if time.Since(connectedAt) >= i.cfg.StableAfter {
				i.backoff.Reset()
			}
		}

		if ctx.Err() != nil {
			return last, stopReason(ctx)
		}
		if _, ok := transport.IsRejected(err); ok {
			return last, err
		}

		i.retries++
		if connected && !i.everJoined {
			i.joinFailures++
			if i.cfg.JoinAttempts > 0 && i.joinFailures >= i.cfg.JoinAttempts {
				return last, transport.Rejected(handshake.ReasonOutOfJoinAttempts,
					fmt.Errorf("%w after %d sessions: %w", ErrOutOfJoinAttempts, i.joinFailures, err))
			}
		}

		delay := i.backoff.NextBackOff()
		i.transition(Snapshot{
			State:         StateWaitingToRetry,
			Retries:       i.retries,
			NextAttemptAt: time.Now().Add(delay),
			Delay:         delay,
			Err:           err,
		})
		i.log.Warn().Err(err).Int("retries", i.retries).Dur("delay", delay).Msg("connection lost, retrying")

		if last != nil && !i.emit(ctx, *last) {
			return last, stopReason(ctx)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, stopReason(ctx)
		}
	}
}

// serve runs one session until it closes, forwarding its packets and
// driving the join handshake. It returns the Disconnected event for the
// session, which the caller emits once the next snapshot is published,
// and the close reason.
func (i *Instance) serve(ctx context.Context, sess *session.Session) (*Event, error) {
	i.generation++
	gen := i.generation
	state := room.New()
	log := i.log.With().Uint64("session", gen).Logger()

	i.transitionWith(sess, Snapshot{State: StateConnected, Session: gen, Retries: i.retries})
	log.Info().Msg("connected")

	stop := context.AfterFunc(ctx, func() { sess.CloseWithError(ErrStopped) })
	defer stop()

	// view is the copy handed out with events, replaced only when a
	// packet changes the state.
	view := state.Clone()
	i.emit(ctx, Event{Kind: EventConnected, Instance: i.cfg.ID, Session: gen, Conn: sess, State: view})

	closing := false
	for p := range sess.Events() {
		changed, joined := state.Update(p)
		if ctx.Err() != nil {
			continue // stopping, drain what is left
		}
		if changed {
			view = state.Clone()
		}

		i.emit(ctx, Event{Kind: EventPacket, Instance: i.cfg.ID, Session: gen, Conn: sess, State: view, Packet: p})
		if joined {
			i.everJoined = true
			i.retries = 0
			log.Info().Str("nick", state.Joined.Session.Name).Msg("joined")
			i.emit(ctx, Event{Kind: EventJoined, Instance: i.cfg.ID, Session: gen, Conn: sess, State: view})
		}

		if closing {
			continue
		}
		var err error
		if p.Kind() == packet.KindReply {
			err = i.handshake.OnReply(p)
		} else {
			_, err = i.handshake.OnEvent(ctx, sess, p)
		}
		if err != nil {
			closing = true
			sess.CloseWithError(err)
		}
	}

	reason := sess.Err()
	log.Debug().Err(reason).Msg("session ended")
	return &Event{
		Kind:     EventDisconnected,
		Instance: i.cfg.ID,
		Session:  gen,
		Conn:     sess,
		State:    state.Clone(),
		Err:      reason,
	}, reason
}

// emit delivers ev unless the instance is stopping.
func (i *Instance) emit(ctx context.Context, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case i.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (i *Instance) transition(next Snapshot) bool {
	return i.transitionWith(nil, next)
}

// transitionWith swaps the current session and publishes next in one step.
func (i *Instance) transitionWith(sess *session.Session, next Snapshot) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.current = sess
	return i.transitionLocked(next)
}

// transitionLocked publishes next if the state machine allows it. An
// illegal transition is a bug in the supervisor and is only logged.
// Caller holds mu.
func (i *Instance) transitionLocked(next Snapshot) bool {
	if !isValidTransition(i.snap.State, next.State) {
		i.log.Error().
			Stringer("from", i.snap.State).
			Stringer("to", next.State).
			Msg("invalid state transition")
		return false
	}
	if next.State != StateConnected {
		i.current = nil
	}
	next.Room = i.cfg.Room
	next.Since = time.Now()
	i.publishLocked(next)
	return true
}

// stopReason turns the cancellation cause into a stop reason.
func stopReason(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrStopped) {
		return ErrStopped
	}
	return fmt.Errorf("%w: %w", ErrStopped, cause)
}
