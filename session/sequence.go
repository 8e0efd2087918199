package session

import (
	"strconv"

	"github.com/risa-org/euph/packet"
)

// Sequencer mints correlation ids for one session.
// It lives inside the session's actor and is never shared.
type Sequencer struct {
	next uint64 // next id to hand out, ids start at 1
}

// NewSequencer creates a sequencer whose first id is 1.
func NewSequencer() *Sequencer {
	return &Sequencer{next: 1}
}

// Next returns a fresh id. Ids never repeat within a sequencer.
func (sq *Sequencer) Next() uint64 {
	id := sq.next
	sq.next++
	return id
}

// Last returns the most recently minted id, or 0 if none was minted.
func (sq *Sequencer) Last() uint64 {
	return sq.next - 1
}

// FormatID renders an id the way it travels in the envelope.
func FormatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// ParseID is the inverse of FormatID. Anything that is not a decimal id
// we could have minted reports false.
func ParseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// result is what a pending slot resolves to.
type result struct {
	reply *packet.Packet
	err   error
}

// pendingTable maps in-flight ids to the slot their caller waits on.
// Slots are buffered so resolving never blocks the actor, and a caller
// that stopped waiting simply leaves its slot to be collected.
// A nil channel marks an internal request nobody waits on.
type pendingTable struct {
	slots map[uint64]slot
}

type slot struct {
	ch  chan result
	typ packet.Type // command type, to name untyped error replies
}

func newPendingTable() *pendingTable {
	return &pendingTable{slots: make(map[uint64]slot)}
}

// add registers id for a command of type typ and returns its slot.
func (t *pendingTable) add(id uint64, typ packet.Type) chan result {
	ch := make(chan result, 1)
	t.slots[id] = slot{ch: ch, typ: typ}
	return ch
}

// addInternal registers id without a waiting caller.
func (t *pendingTable) addInternal(id uint64, typ packet.Type) {
	t.slots[id] = slot{typ: typ}
}

// commandType reports the type of the command pending under id.
func (t *pendingTable) commandType(id uint64) (packet.Type, bool) {
	s, ok := t.slots[id]
	return s.typ, ok
}

// resolve delivers res to the slot for id and forgets it.
// Returns false if id is not pending, which covers both unknown and
// already-answered ids.
func (t *pendingTable) resolve(id uint64, res result) bool {
	s, ok := t.slots[id]
	if !ok {
		return false
	}
	delete(t.slots, id)
	if s.ch != nil {
		s.ch <- res
	}
	return true
}

// cancelAll resolves every slot with err and empties the table.
func (t *pendingTable) cancelAll(err error) {
	for id, s := range t.slots {
		if s.ch != nil {
			s.ch <- result{err: err}
		}
		delete(t.slots, id)
	}
}

func (t *pendingTable) len() int {
	return len(t.slots)
}
