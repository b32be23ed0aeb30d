package multicast

import (
	"sort"
	"sync"
)

// DeliverFunc is invoked for every released message, in sequence order.
type DeliverFunc func(seq uint64, m Message)

// DeliveryBuffer reorders sequenced messages and releases them without
// gaps or repeats: 1, 2, 3, ... regardless of arrival order.
type DeliveryBuffer struct {
	mu           sync.Mutex
	pending      map[uint64]Message
	nextExpected uint64
	deliver      DeliverFunc
}

// NewDeliveryBuffer creates a buffer expecting sequence number 1 first.
func NewDeliveryBuffer(deliver DeliverFunc) *DeliveryBuffer {
	if deliver == nil {
		deliver = func(uint64, Message) {}
	}
	return &DeliveryBuffer{
		pending:      make(map[uint64]Message),
		nextExpected: 1,
		deliver:      deliver,
	}
}

// Accept stores (seq, m) and releases the longest contiguous run starting at
// the next expected number. It returns how many messages were released.
// Numbers already delivered are ignored; a repeated pending number overwrites
// its earlier copy.
func (b *DeliveryBuffer) Accept(seq uint64, m Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seq < b.nextExpected {
		return 0
	}
	b.pending[seq] = m

	released := 0
	for {
		next, ok := b.pending[b.nextExpected]
		if !ok {
			break
		}
		delete(b.pending, b.nextExpected)
		b.deliver(b.nextExpected, next)
		b.nextExpected++
		released++
	}
	return released
}

// NextExpected returns the lowest sequence number not yet delivered.
func (b *DeliveryBuffer) NextExpected() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextExpected
}

// Pending returns the buffered sequence numbers in ascending order.
func (b *DeliveryBuffer) Pending() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	seqs := make([]uint64, 0, len(b.pending))
	for seq := range b.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}
