// Package handshake drives a fresh session into a room.
//
// After the socket opens the server speaks first: a hello-event, then
// either a snapshot-event (we are in) or a bounce-event (we must
// authenticate). The Handler reacts to those events by submitting auth
// and nick commands, and decides when a room has turned us away for good.
package handshake

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/risa-org/euph/packet"
	"github.com/risa-org/euph/session"
	"github.com/risa-org/euph/transport"
)

// Rejection reasons. A rejection is never retried; it is reported as a
// *transport.ConnectError with one of these codes.
const (
	ReasonRoomNotFound      = transport.CodeRoomNotFound
	ReasonAuthRequired      = "auth_required"
	ReasonInvalidPassword   = "invalid_password"
	ReasonOutOfJoinAttempts = "out_of_join_attempts"
)

// Sender is the part of a session the handshake writes to.
type Sender interface {
	SubmitRaw(ctx context.Context, t packet.Type, data any) (*session.Pending, error)
}

// Config is what we bring to the room.
type Config struct {
	// Password answers a passcode bounce. Empty means the room must be open.
	Password string

	// Nick is set after joining if the server does not remember one for
	// us. Empty keeps whatever the server assigns.
	Nick string

	// ForceNick sets Nick even if the server remembered a different one.
	ForceNick bool
}

// Step is what the handler did in response to a packet.
type Step int

const (
	StepNone     Step = iota // 0 - nothing to do
	StepAuthSent             // 1 - answered a bounce with our passcode
	StepJoined               // 2 - snapshot arrived, we are in the room
)

func (s Step) String() string {
	switch s {
	case StepAuthSent:
		return "auth sent"
	case StepJoined:
		return "joined"
	default:
		return "none"
	}
}

// Outcome reports a handled event. Pending lists the commands the handler
// submitted; their replies belong to OnReply.
type Outcome struct {
	Step    Step
	Pending []*session.Pending
}

// Handler holds no per-session state, one Handler serves every session
// an instance opens.
type Handler struct {
	cfg Config
	log zerolog.Logger
}

// NewHandler creates a handler. A nil logger disables logging.
func NewHandler(cfg Config, log *zerolog.Logger) *Handler {
	l := zerolog.Nop()
	if log != nil {
		l = *log
	}
	return &Handler{cfg: cfg, log: l.With().Str("component", "handshake").Logger()}
}

// OnEvent reacts to one event of a fresh or joined session. A non-nil error
// ends the session; a *transport.ConnectError means the room rejected us.
func (h *Handler) OnEvent(ctx context.Context, s Sender, ev *packet.Packet) (Outcome, error) {
	switch ev.Type {
	case packet.BounceEvent:
		var data packet.BounceEventData
		if err := ev.Into(packet.BounceEvent, &data); err != nil {
			return Outcome{}, err
		}
		return h.onBounce(ctx, s, &data)

	case packet.SnapshotEvent:
		var data packet.SnapshotEventData
		if err := ev.Into(packet.SnapshotEvent, &data); err != nil {
			return Outcome{}, err
		}
		return h.onSnapshot(ctx, s, &data)
	}
	return Outcome{}, nil
}

func (h *Handler) onBounce(ctx context.Context, s Sender, ev *packet.BounceEventData) (Outcome, error) {
	if !ev.Offers(packet.AuthPasscode) {
		// Bounced without a way in. The server closes the socket itself.
		h.log.Debug().Str("reason", ev.Reason).Msg("bounced without auth options")
		return Outcome{}, nil
	}
	if h.cfg.Password == "" {
		return Outcome{}, transport.Rejected(ReasonAuthRequired,
			errors.New("room requires a passcode but none is configured"))
	}

	pending, err := s.SubmitRaw(ctx, packet.Auth, packet.AuthCommand{
		Type:     packet.AuthPasscode,
		Passcode: h.cfg.Password,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("send auth: %w", err)
	}
	h.log.Debug().Msg("passcode sent")
	return Outcome{Step: StepAuthSent, Pending: []*session.Pending{pending}}, nil
}

func (h *Handler) onSnapshot(ctx context.Context, s Sender, ev *packet.SnapshotEventData) (Outcome, error) {
	out := Outcome{Step: StepJoined}
	if h.cfg.Nick == "" {
		return out, nil
	}
	if ev.Nick != "" && !h.cfg.ForceNick {
		return out, nil
	}

	pending, err := s.SubmitRaw(ctx, packet.Nick, packet.NickCommand{Name: h.cfg.Nick})
	if err != nil {
		return out, fmt.Errorf("send nick: %w", err)
	}
	out.Pending = append(out.Pending, pending)
	return out, nil
}

// OnReply inspects the reply to a command OnEvent submitted. A failed auth
// is a rejection; a refused nick is only logged.
func (h *Handler) OnReply(reply *packet.Packet) error {
	switch reply.Type {
	case packet.AuthReply:
		var data packet.AuthReplyData
		if err := reply.Into(packet.AuthReply, &data); err != nil {
			return transport.Rejected(ReasonInvalidPassword, err)
		}
		if !data.Success {
			return transport.Rejected(ReasonInvalidPassword, fmt.Errorf("auth failed: %s", data.Reason))
		}
		h.log.Debug().Msg("authenticated")

	case packet.NickReply:
		if reply.Error != "" {
			h.log.Warn().Str("nick", h.cfg.Nick).Str("error", reply.Error).Msg("nick refused")
		}
	}
	return nil
}
