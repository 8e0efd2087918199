package instance

import (
	"time"
)

// DefaultSnapshotBuffer is how many snapshots a subscriber may fall behind
// before the oldest are dropped.
const DefaultSnapshotBuffer = 16

// Snapshot is an immutable view of an instance at one point in time.
// Snapshots are published on every state transition, in order.
type Snapshot struct {
	State State
	Room  string

	// Session is the generation of the live session while Connected,
	// 0 otherwise. Generations count up from 1 per instance.
	Session uint64

	// Since is when State was entered.
	Since time.Time

	// Retries counts failed attempts and lost sessions since the last
	// join, or since start if the instance never joined.
	Retries int

	// NextAttemptAt and Delay are set while WaitingToRetry.
	NextAttemptAt time.Time
	Delay         time.Duration

	// Err is why the last attempt or session failed while WaitingToRetry,
	// or why the instance stopped.
	Err error
}

// Subscription is one observer's queue of snapshots. The first value is
// the snapshot that was current when the subscription was made. The
// channel is closed after the Stopped snapshot.
type Subscription struct {
	C <-chan Snapshot

	ch   chan Snapshot
	inst *Instance
}

// Close stops delivery and closes C. Safe to call multiple times.
func (s *Subscription) Close() {
	s.inst.mu.Lock()
	defer s.inst.mu.Unlock()
	if _, ok := s.inst.subs[s]; ok {
		delete(s.inst.subs, s)
		close(s.ch)
	}
}

// subscribeLocked registers a new observer. Caller holds inst.mu.
func (i *Instance) subscribeLocked() *Subscription {
	ch := make(chan Snapshot, i.cfg.SnapshotBuffer)
	sub := &Subscription{C: ch, ch: ch, inst: i}
	ch <- i.snap
	if i.snap.State == StateStopped {
		close(ch)
		return sub
	}
	i.subs[sub] = struct{}{}
	return sub
}

// publishLocked makes snap current and offers it to every subscriber.
// A subscriber that is behind loses its oldest snapshot, never the newest,
// so publishing never blocks. Caller holds inst.mu.
func (i *Instance) publishLocked(snap Snapshot) {
	i.snap = snap
	for sub := range i.subs {
		offer(sub.ch, snap)
		if snap.State == StateStopped {
			delete(i.subs, sub)
			close(sub.ch)
		}
	}
}

// offer puts snap on ch, evicting the oldest entries until it fits. Only
// the publisher sends on ch, so the loop ends.
func offer(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
