package session

import (
	"context"
	"fmt"
	"time"

	"github.com/risa-org/euph/packet"
	"github.com/risa-org/euph/transport"
)

// actor is the state only the session goroutine touches.
type actor struct {
	ids     *Sequencer
	pending *pendingTable
	queue   []*packet.Packet // packets not yet taken by the consumer
	pingID  uint64           // our unanswered ping, 0 when none
}

func (s *Session) run() {
	a := &actor{ids: NewSequencer(), pending: newPendingTable()}
	reason := s.loop(a)
	s.shutdown(a, reason)
}

func (s *Session) loop(a *actor) error {
	var pingC <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	var idleC <-chan time.Time
	var idle *time.Timer
	if s.cfg.IdleTimeout > 0 {
		idle = time.NewTimer(s.cfg.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		// A nil channel blocks forever in a select, which switches a case
		// off without a second select statement.
		var out chan<- *packet.Packet
		var next *packet.Packet
		if len(a.queue) > 0 {
			out = s.events
			next = a.queue[0]
		}

		// Stop reading while the consumer is behind. Requests and Close
		// are still served.
		throttled := len(a.queue) >= s.cfg.EventBuffer
		in := s.transport.Receive()
		if throttled {
			in = nil
		}

		select {
		case out <- next:
			a.queue[0] = nil
			a.queue = a.queue[1:]

		case frame, ok := <-in:
			if !ok {
				return s.transportGone()
			}
			isPing, err := s.handleFrame(a, frame)
			if err != nil {
				return err
			}
			if isPing && idle != nil {
				idle.Reset(s.cfg.IdleTimeout)
			}

		case req := <-s.requests:
			if err := s.handleRequest(a, req); err != nil {
				return err
			}

		case <-pingC:
			// The server cannot answer pings we are not reading replies
			// for, so a throttled session does not count missed pongs.
			if throttled {
				continue
			}
			if a.pingID != 0 {
				return fmt.Errorf("%w: ping %d unanswered after %s", ErrKeepaliveTimedOut, a.pingID, s.cfg.PingInterval)
			}
			if err := s.ping(a); err != nil {
				return err
			}

		case <-idleC:
			if throttled {
				idle.Reset(s.cfg.IdleTimeout)
				continue
			}
			return fmt.Errorf("%w: no ping-event for %s", ErrKeepaliveTimedOut, s.cfg.IdleTimeout)

		case reason := <-s.closeReq:
			return reason
		}
	}
}

// handleFrame decodes one frame and routes it. It reports whether the frame
// was a ping-event so the idle timer can be re-armed.
func (s *Session) handleFrame(a *actor, frame []byte) (bool, error) {
	p, err := packet.Decode(frame)
	if err != nil {
		return false, err
	}

	switch p.Kind() {
	case packet.KindReply:
		if p.ID == "" {
			return false, fmt.Errorf("%w: %s without id", ErrProtocolViolation, p.Type)
		}
		id, ok := ParseID(p.ID)
		if ok && p.Type == "" {
			// An untyped error reply answers whatever was sent under id.
			var typ packet.Type
			if typ, ok = a.pending.commandType(id); ok {
				p.Type = typ.Reply()
			}
		}
		if !ok || !a.pending.resolve(id, result{reply: p}) {
			return false, fmt.Errorf("%w: %s for unknown id %q", ErrProtocolViolation, p.Type, p.ID)
		}
		if id == a.pingID {
			a.pingID = 0
			return false, nil
		}
		a.queue = append(a.queue, p)
		return false, nil

	case packet.KindEvent:
		isPing := p.Type == packet.PingEvent
		if isPing {
			if err := s.pong(p); err != nil {
				return false, err
			}
		}
		a.queue = append(a.queue, p)
		return isPing, nil

	default:
		return false, fmt.Errorf("%w: server sent command %s", ErrProtocolViolation, p.Type)
	}
}

// handleRequest numbers a command, registers its slot and writes it.
// The caller gets its Pending even if the write fails; the write error
// ends the session and the slot resolves with the close reason.
func (s *Session) handleRequest(a *actor, req *request) error {
	id := a.ids.Next()
	req.packet.ID = FormatID(id)
	req.ready <- &Pending{
		ID:      id,
		Type:    req.packet.Type,
		result:  a.pending.add(id, req.packet.Type),
		timeout: s.cfg.CommandTimeout,
	}
	return s.write(req.packet, s.cfg.WriteTimeout)
}

// ping sends our own keepalive probe. Its reply is matched like any other.
func (s *Session) ping(a *actor) error {
	p, err := packet.NewCommand(packet.Ping, packet.PingCommand{Time: packet.Now()})
	if err != nil {
		return err
	}
	id := a.ids.Next()
	p.ID = FormatID(id)
	a.pending.addInternal(id, packet.Ping)
	a.pingID = id
	return s.write(p, s.cfg.WriteTimeout)
}

// pong answers a ping-event with the time it carried.
func (s *Session) pong(ev *packet.Packet) error {
	var data packet.PingEventData
	if err := ev.Into(packet.PingEvent, &data); err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	reply, err := packet.NewReply(ev.ID, packet.PingReply, packet.PingReplyData{Time: &data.Time})
	if err != nil {
		return err
	}
	if err := s.write(reply, s.cfg.PongTimeout); err != nil {
		return fmt.Errorf("%w: answering ping: %w", ErrKeepaliveTimedOut, err)
	}
	return nil
}

func (s *Session) write(p *packet.Packet, timeout time.Duration) error {
	frame, err := packet.Encode(p)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.transport.Send(ctx, frame); err != nil {
		return fmt.Errorf("write %s: %w", p.Type, err)
	}
	return nil
}

// transportGone turns a closed Receive channel into a close reason. The
// adapter signals Disconnected before it closes Receive.
func (s *Session) transportGone() error {
	select {
	case ev := <-s.transport.Disconnected():
		return ev.Error()
	default:
		return transport.ErrTransportClosed
	}
}

// shutdown publishes the close reason, fails every in-flight command and
// delivers what is left of the queue before closing Events.
func (s *Session) shutdown(a *actor, reason error) {
	s.err = reason
	s.transport.Close()
	a.pending.cancelAll(&ClosedError{Reason: reason})
	close(s.done)

	s.log.Debug().
		Err(reason).
		Int("queued", len(a.queue)).
		Uint64("last_id", a.ids.Last()).
		Msg("session closed")

	for _, p := range a.queue {
		s.events <- p
	}
	close(s.events)
}
