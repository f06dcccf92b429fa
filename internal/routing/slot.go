package routing

import "sync/atomic"

// Slot is the single-slot handoff of the newest Message from the
// control context to the audio context. Publish overwrites any update
// the consumer has not taken yet, so bursts coalesce to the latest;
// Take never waits. Only the newest table matters, so one slot replaces
// a queue. Single producer, single consumer.
type Slot struct {
	latest atomic.Pointer[Message]
}

// Publish makes m the pending update, replacing any unconsumed one.
// The store has release semantics: a consumer observing m also observes
// every write made to m before Publish. Publishing nil is a no-op.
func (s *Slot) Publish(m *Message) {
	if m == nil {
		return
	}
	s.latest.Store(m)
}

// Take removes and returns the pending update, or nil when there is
// none. The load has acquire semantics and never blocks; the audio
// context calls it once at each block start.
func (s *Slot) Take() *Message {
	// Plain load on the empty fast path keeps the per-block cost of an
	// idle slot to one read. Single consumer, so the check and the swap
	// need not be one atomic step.
	if s.latest.Load() == nil {
		return nil
	}
	return s.latest.Swap(nil)
}

// Pending reports whether an update is waiting to be taken.
func (s *Slot) Pending() bool {
	return s.latest.Load() != nil
}
