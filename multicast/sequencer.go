package multicast

import "sync"

/*
Sequencer

Exactly one node in a cluster holds a Sequencer. It owns the global counter
and the table of identities it has already numbered. Both live behind one
mutex so that:
  - the counter never skips or repeats a value
  - two concurrent requests for the same identity get the same number;
    the first insert wins and later callers reuse it

Broadcasting the resulting SEQ frame is the node's job, not the Sequencer's.
*/

// Assignment is the outcome of one Assign call.
type Assignment struct {
	Seq     uint64
	Message Message
	// Fresh is true when this call created the number.
	Fresh bool
}

// Sequencer assigns global sequence numbers starting at 1.
type Sequencer struct {
	mu       sync.Mutex
	counter  uint64
	assigned map[Identity]uint64
}

// NewSequencer creates a sequencer whose first assignment is 1.
func NewSequencer() *Sequencer {
	return &Sequencer{
		assigned: make(map[Identity]uint64),
	}
}

// Assign returns m's sequence number, creating one if m's identity has none yet.
func (s *Sequencer) Assign(m Message) Assignment {
	id := m.Identity()

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq, ok := s.assigned[id]; ok {
		return Assignment{Seq: seq, Message: m}
	}
	s.counter++
	s.assigned[id] = s.counter
	return Assignment{Seq: s.counter, Message: m, Fresh: true}
}

// Lookup returns the number already assigned to id, if any.
func (s *Sequencer) Lookup(id Identity) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.assigned[id]
	return seq, ok
}

// Current returns the last number handed out, 0 before any assignment.
func (s *Sequencer) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}
