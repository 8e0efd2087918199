package packet

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Decode failures. Both are wrapped in a *DecodeError so callers can
// inspect the offending type while still matching with errors.Is.
var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownType       = errors.New("unknown packet type")
)

// Packet is the wire envelope shared by commands, replies and events.
//
// Commands and replies carry an ID; events never do. A reply may carry
// data, an error, or both.
type Packet struct {
	ID              string          `json:"id,omitempty"`
	Type            Type            `json:"type"`
	Data            json.RawMessage `json:"data,omitempty"`
	Error           string          `json:"error,omitempty"`
	Throttled       bool            `json:"throttled,omitempty"`
	ThrottledReason string          `json:"throttled_reason,omitempty"`
}

// DecodeError describes a frame that could not be turned into a Packet.
type DecodeError struct {
	Err   error // ErrMalformedEnvelope or ErrUnknownType
	Type  Type  // set for ErrUnknownType
	Cause error // underlying JSON error, if any
}

func (e *DecodeError) Error() string {
	switch {
	case e.Type != "":
		return fmt.Sprintf("%v: %q", e.Err, string(e.Type))
	case e.Cause != nil:
		return fmt.Sprintf("%v: %v", e.Err, e.Cause)
	default:
		return e.Err.Error()
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ServerError is the error string a server attaches to a failed reply.
type ServerError struct {
	Type    Type
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Encode serialises p into a text frame. It never assigns an id.
func Encode(p *Packet) ([]byte, error) {
	return json.Marshal(p)
}

// NewCommand builds an unnumbered command packet with data marshalled into
// its payload. A nil data value produces an empty object, which is what the
// server expects for parameterless commands like who.
func NewCommand(t Type, data any) (*Packet, error) {
	if t.Kind() != KindCommand {
		return nil, fmt.Errorf("%q is not a command type", string(t))
	}
	if data == nil {
		return &Packet{Type: t, Data: json.RawMessage("{}")}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Packet{Type: t, Data: raw}, nil
}

// NewReply builds a reply packet answering the command with the given id.
func NewReply(id string, t Type, data any) (*Packet, error) {
	if t.Kind() != KindReply {
		return nil, fmt.Errorf("%q is not a reply type", string(t))
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Packet{ID: id, Type: t, Data: raw}, nil
}

// Decode parses one text frame. It is pure and never panics on bad input.
// A frame without a type is accepted only as an error reply with an id.
func Decode(frame []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(frame, &p); err != nil {
		return nil, &DecodeError{Err: ErrMalformedEnvelope, Cause: err}
	}
	if p.Type == "" {
		if p.ID != "" && p.Error != "" {
			return &p, nil
		}
		return nil, &DecodeError{Err: ErrMalformedEnvelope, Cause: errors.New("missing type")}
	}
	if !p.Type.Known() {
		return nil, &DecodeError{Err: ErrUnknownType, Type: p.Type}
	}
	return &p, nil
}

// Kind is shorthand for p.Type.Kind(). A bare {id, error} frame, which
// servers send for commands they could not parse, is a reply.
func (p *Packet) Kind() Kind {
	if p.Type == "" && p.ID != "" && p.Error != "" {
		return KindReply
	}
	return p.Type.Kind()
}

// Payload interprets Data according to Type. Types without a model are
// returned as json.RawMessage. A reply with an error yields *ServerError.
func (p *Packet) Payload() (any, error) {
	if p.Error != "" {
		return nil, &ServerError{Type: p.Type, Message: p.Error}
	}
	ctor, ok := payloads[p.Type]
	if !ok {
		return p.Data, nil
	}
	v := ctor()
	if len(p.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(p.Data, v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", p.Type, err)
	}
	return v, nil
}

// Into decodes the packet's data into v after checking the packet type.
func (p *Packet) Into(t Type, v any) error {
	if p.Error != "" {
		return &ServerError{Type: p.Type, Message: p.Error}
	}
	if p.Type != t {
		return fmt.Errorf("expected %s packet, got %s", t, p.Type)
	}
	if len(p.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(p.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", t, err)
	}
	return nil
}
