package instance

import (
	"github.com/risa-org/euph/packet"
	"github.com/risa-org/euph/room"
	"github.com/risa-org/euph/session"
)

// EventKind tells what happened to an instance.
type EventKind int

const (
	EventConnecting   EventKind = iota // 0 - a connection attempt begins
	EventConnected                     // 1 - a session is open, not yet in the room
	EventJoined                        // 2 - hello and snapshot received
	EventPacket                        // 3 - the session received a packet
	EventDisconnected                  // 4 - the session closed, Err says why
	EventStopped                       // 5 - terminal, Err says why
)

func (k EventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventJoined:
		return "joined"
	case EventPacket:
		return "packet"
	case EventDisconnected:
		return "disconnected"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is one entry of an instance's merged event stream.
//
// Within a session events arrive in the order the server sent the packets.
// Every event of session N, its Disconnected included, is delivered before
// the Connecting event of the next attempt.
type Event struct {
	Kind     EventKind
	Instance string // Instance.ID of the source
	Session  uint64 // generation, 0 for Connecting and Stopped

	// Conn is the session the event belongs to. Replies sent through it
	// fail once that session has closed, even if a newer one is live.
	Conn *session.Session

	// State is a copy of the room state after the packet was applied.
	// Consecutive events share one copy until a packet changes the state,
	// so treat it as read-only. Set for Connected, Joined and Packet.
	State *room.State

	Packet *packet.Packet // set for Packet
	Err    error          // set for Disconnected and Stopped
}
