// Package room tracks what a client knows about the room it is connected
// to: its own session, its account and who else is present.
//
// A State starts out Joining and becomes Joined once both the hello-event
// and the snapshot-event have arrived. Feed it every packet the session
// receives, events and replies alike, or the listing drifts.
package room

import (
	"time"

	"github.com/risa-org/euph/packet"
)

// SessionInfo is one entry in the listing.
//
// A nick-event names a session without describing it fully, so entries
// learned only from nick-events are Partial: View carries just ID,
// SessionID and Name. The entry becomes complete as soon as the session
// does something that reveals the rest.
type SessionInfo struct {
	View    packet.SessionView
	Partial bool
}

// Joining is the state before the room let us in.
type Joining struct {
	Since    time.Time
	Hello    *packet.HelloEventData
	Snapshot *packet.SnapshotEventData
	Bounce   *packet.BounceEventData
}

// Joined is the state once we are in the room.
type Joined struct {
	Since   time.Time
	Session packet.SessionView          // our own session
	Account *packet.PersonalAccountView // nil unless logged in
	Listing map[string]SessionInfo      // everyone else, by session id
}

// State is exactly one of Joining or Joined.
type State struct {
	Joining *Joining
	Joined  *Joined
}

// New returns the state of a fresh connection.
func New() *State {
	return &State{Joining: &Joining{Since: time.Now()}}
}

// IsJoined reports whether we are in the room.
func (s *State) IsJoined() bool {
	return s.Joined != nil
}

// Apply updates the state with one packet from the server. Packets that
// carry nothing of interest, errors included, are ignored.
// It reports whether this packet completed the join.
func (s *State) Apply(p *packet.Packet) bool {
	_, joined := s.Update(p)
	return joined
}

// Update is Apply that also reports whether the packet changed anything,
// so callers holding a Clone know when theirs has gone stale.
func (s *State) Update(p *packet.Packet) (changed, joined bool) {
	if p.Error != "" {
		return false, false
	}
	if s.Joined != nil {
		return s.Joined.apply(p), false
	}
	if s.Joining == nil {
		s.Joining = &Joining{Since: time.Now()}
	}
	changed = s.Joining.apply(p)
	if joined := s.Joining.toJoined(); joined != nil {
		s.Joined = joined
		s.Joining = nil
		return true, true
	}
	return changed, false
}

// Clone returns a deep copy that shares nothing mutable with s.
func (s *State) Clone() *State {
	out := &State{}
	if s.Joining != nil {
		// Hello, Snapshot and Bounce are replaced, never mutated.
		j := *s.Joining
		out.Joining = &j
	}
	if s.Joined != nil {
		j := *s.Joined
		if j.Account != nil {
			acc := *j.Account
			j.Account = &acc
		}
		j.Listing = make(map[string]SessionInfo, len(s.Joined.Listing))
		for id, info := range s.Joined.Listing {
			j.Listing[id] = info
		}
		out.Joined = &j
	}
	return out
}

func (j *Joining) apply(p *packet.Packet) bool {
	switch p.Type {
	case packet.BounceEvent:
		var data packet.BounceEventData
		if p.Into(packet.BounceEvent, &data) == nil {
			j.Bounce = &data
			return true
		}
	case packet.HelloEvent:
		var data packet.HelloEventData
		if p.Into(packet.HelloEvent, &data) == nil {
			j.Hello = &data
			return true
		}
	case packet.SnapshotEvent:
		var data packet.SnapshotEventData
		if p.Into(packet.SnapshotEvent, &data) == nil {
			j.Snapshot = &data
			return true
		}
	}
	return false
}

func (j *Joining) toJoined() *Joined {
	if j.Hello == nil || j.Snapshot == nil {
		return nil
	}

	own := j.Hello.Session
	if j.Snapshot.Nick != "" {
		own.Name = j.Snapshot.Nick
	}

	listing := make(map[string]SessionInfo, len(j.Snapshot.Listing))
	for _, view := range j.Snapshot.Listing {
		listing[view.SessionID] = SessionInfo{View: view}
	}

	joined := &Joined{
		Since:   time.Now(),
		Session: own,
		Listing: listing,
	}
	if j.Hello.Account != nil {
		acc := *j.Hello.Account
		joined.Account = &acc
	}
	return joined
}

func (j *Joined) apply(p *packet.Packet) bool {
	switch p.Type {
	case packet.JoinEvent:
		var data packet.JoinEventData
		if p.Into(packet.JoinEvent, &data) == nil {
			return j.upsert(data.SessionView)
		}

	case packet.PartEvent:
		var data packet.PartEventData
		if p.Into(packet.PartEvent, &data) == nil {
			if _, ok := j.Listing[data.SessionID]; ok {
				delete(j.Listing, data.SessionID)
				return true
			}
		}

	case packet.NetworkEvent:
		var data packet.NetworkEventData
		if p.Into(packet.NetworkEvent, &data) == nil && data.Type == "partition" {
			return j.partition(data.ServerID, data.ServerEra)
		}

	case packet.SendEvent:
		var data packet.SendEventData
		if p.Into(packet.SendEvent, &data) == nil {
			return j.upsert(data.Sender)
		}

	case packet.NickEvent:
		var data packet.NickEventData
		if p.Into(packet.NickEvent, &data) == nil {
			return j.rename(&data)
		}

	case packet.NickReply:
		var data packet.NickReplyData
		if p.Into(packet.NickReply, &data) == nil && data.SessionID == j.Session.SessionID && j.Session.Name != data.To {
			j.Session.Name = data.To
			return true
		}

	case packet.WhoReply:
		var data packet.WhoReplyData
		if p.Into(packet.WhoReply, &data) == nil {
			j.Listing = make(map[string]SessionInfo, len(data.Listing))
			for _, view := range data.Listing {
				if view.SessionID == j.Session.SessionID {
					j.Session = view
					continue
				}
				j.Listing[view.SessionID] = SessionInfo{View: view}
			}
			return true
		}
	}
	return false
}

// upsert records a fully described session.
func (j *Joined) upsert(view packet.SessionView) bool {
	info := SessionInfo{View: view}
	if cur, ok := j.Listing[view.SessionID]; ok && cur == info {
		return false
	}
	j.Listing[view.SessionID] = info
	return true
}

// partition drops every session hosted on the server that went away.
// Partial entries are dropped too since we cannot tell where they lived;
// they come back with their next visible action.
func (j *Joined) partition(serverID, serverEra string) bool {
	changed := false
	for id, info := range j.Listing {
		if info.Partial || (info.View.ServerID == serverID && info.View.ServerEra == serverEra) {
			delete(j.Listing, id)
			changed = true
		}
	}
	return changed
}

func (j *Joined) rename(ev *packet.NickEventData) bool {
	info, ok := j.Listing[ev.SessionID]
	if ok && !info.Partial {
		if info.View.Name == ev.To {
			return false
		}
		info.View.Name = ev.To
		j.Listing[ev.SessionID] = info
		return true
	}
	partial := SessionInfo{
		View: packet.SessionView{
			ID:        ev.ID,
			SessionID: ev.SessionID,
			Name:      ev.To,
		},
		Partial: true,
	}
	if ok && info == partial {
		return false
	}
	j.Listing[ev.SessionID] = partial
	return true
}

// Nicks returns the names of everyone in the listing, ourselves excluded.
func (j *Joined) Nicks() []string {
	out := make([]string, 0, len(j.Listing))
	for _, info := range j.Listing {
		out = append(out, info.View.Name)
	}
	return out
}
