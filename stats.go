package eventqueue

import "sync/atomic"

type counters struct {
	offerAttempts   atomic.Uint64
	offered         atomic.Uint64
	offeredExtended atomic.Uint64
	rejectedInvalid atomic.Uint64
	rejectedFull    atomic.Uint64
	partialEvents   atomic.Uint64

	received     atomic.Uint64
	parks        atomic.Uint64
	wakes        atomic.Uint64
	wakeFailures atomic.Uint64
	underruns    atomic.Uint64
}

// Stats is a snapshot of the queue counters.
type Stats struct {
	OfferAttempts   uint64 // calls to OfferEvent and OfferExtendedEvent
	Offered         uint64 // simple events queued
	OfferedExtended uint64 // extended events queued
	RejectedInvalid uint64 // offers refused for out of range arguments
	RejectedFull    uint64 // offers refused before sending any word
	PartialEvents   uint64 // extended events aborted after some words were sent

	Received     uint64 // event header words handed to the consumer
	Parks        uint64 // times the consumer registered itself as waiting
	Wakes        uint64 // parked consumers resumed by a producer
	WakeFailures uint64 // wakes aimed at an identity that was no longer waiting
	Underruns    uint64 // payload words missing while decoding extended data
}

// Stats retrieves the current statistics of the queue.
func (q *Queue) Stats() Stats {
	return Stats{
		OfferAttempts:   q.stats.offerAttempts.Load(),
		Offered:         q.stats.offered.Load(),
		OfferedExtended: q.stats.offeredExtended.Load(),
		RejectedInvalid: q.stats.rejectedInvalid.Load(),
		RejectedFull:    q.stats.rejectedFull.Load(),
		PartialEvents:   q.stats.partialEvents.Load(),
		Received:        q.stats.received.Load(),
		Parks:           q.stats.parks.Load(),
		Wakes:           q.stats.wakes.Load(),
		WakeFailures:    q.stats.wakeFailures.Load(),
		Underruns:       q.stats.underruns.Load(),
	}
}
