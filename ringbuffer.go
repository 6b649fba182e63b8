package eventqueue

import "sync/atomic"

// Original algorithm by Dmitry Vyukov
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue

// WordQueue is the transport the event queue is built on: a bounded FIFO of
// 4-byte words with non-blocking send and receive.
//
// TrySend and Free may be called from many goroutines. TryReceive must be
// called from a single consumer goroutine.
type WordQueue interface {
	// TrySend appends w. Returns false if the queue is full.
	TrySend(w uint32) bool
	// TryReceive pops the oldest word. Returns (0, false) if the queue is empty.
	TryReceive() (uint32, bool)
	// Free returns the number of words that can be sent before the queue is full.
	Free() int
}

type slot struct {
	seq atomic.Uint64 // sequence number (controls visibility and slot ownership)
	val uint32        // word stored in this slot
}
