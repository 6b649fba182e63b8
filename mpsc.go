package eventqueue

import (
	"runtime"
	"sync/atomic"
)

const goschedEvery = 64 // reduce runtime.Gosched() frequency in hot loops

// Ring is a bounded, lock-free, multi-producer single-consumer queue of words.
// Unlike a masked ring its capacity does not need to be a power of two.
type Ring struct {
	// Optional padding to avoid false sharing between frequently accessed fields
	_        [64]byte
	capacity uint64
	slots    []slot
	_        [64]byte
	enqueue  atomic.Uint64 // logical "tail", updated by multiple producers
	_        [64]byte
	dequeue  atomic.Uint64 // logical "head", written by the single consumer, read by producers in Free
	_        [64]byte
}

var _ WordQueue = (*Ring)(nil)

// NewRing creates a ring holding up to capacity words.
// Panics if capacity is not positive.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("capacity must be > 0")
	}

	slots := make([]slot, capacity)
	for i := range slots {
		// initial sequence value per slot
		slots[i].seq.Store(uint64(i))
	}

	return &Ring{
		capacity: uint64(capacity),
		slots:    slots,
	}
}

// TrySend pushes a word into the ring.
// Returns false if the ring is full (overflow).
// May be called concurrently from many goroutines (producers).
func (q *Ring) TrySend(w uint32) bool {
	var spins uint32
	for {
		pos := q.enqueue.Load()
		s := &q.slots[pos%q.capacity]

		seq := s.seq.Load()
		diff := int64(seq) - int64(pos)

		if diff == 0 {
			// slot is free for this position, try to reserve it
			if q.enqueue.CompareAndSwap(pos, pos+1) {
				s.val = w
				// publish the value: seq = pos+1
				s.seq.Store(pos + 1)
				return true
			}
		} else if diff < 0 {
			// slot has not been freed by the consumer yet
			// => ring is full
			return false
		}
		// contention, or the slot still belongs to a previous cycle
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// TryReceive pops a word from the ring.
// Returns (0, false) if the ring is empty.
// IMPORTANT: must be called from a single consumer goroutine.
func (q *Ring) TryReceive() (uint32, bool) {
	pos := q.dequeue.Load()
	s := &q.slots[pos%q.capacity]

	seq := s.seq.Load()
	if seq != pos+1 {
		// either logically empty, or a producer reserved the slot but has
		// not published it yet
		return 0, false
	}

	w := s.val
	// free the slot for the next cycle:
	// next time this physical slot will be used at pos+capacity
	s.seq.Store(pos + q.capacity)
	q.dequeue.Store(pos + 1)

	return w, true
}

// Len returns the number of words reserved by producers and not yet received.
func (q *Ring) Len() int {
	deq := q.dequeue.Load()
	enq := q.enqueue.Load()
	if enq < deq {
		return 0
	}
	return int(enq - deq)
}

// Free returns the number of words that can still be sent.
// Observed from a producer the value may be stale but never too high.
func (q *Ring) Free() int {
	n := int(q.capacity) - q.Len()
	if n < 0 {
		return 0
	}
	return n
}

// Capacity returns the fixed ring capacity in words.
func (q *Ring) Capacity() int {
	return int(q.capacity)
}
