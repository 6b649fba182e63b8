// Package eventqueue provides a multi-producer, single-consumer event queue
// carried over a bounded queue of 4-byte words, with a typed reader for
// events whose payload spans several words.
//
// # Events
//
// A simple event is one word: a 7-bit type and 24 bits of data.
//
//	bit 31      extended flag (0)
//	bits 30-24  type
//	bits 23-0   data
//
// An extended event is a header word with the extended flag set and the
// payload length in bytes in place of the data, followed by ceil(length/4)
// payload words packed little-endian.
//
// # Producing
//
// Producers may run on any goroutine. Each offer holds the producer gate
// while it sends, so the words of an extended event are never interleaved
// with another event, and an extended event is only sent if the whole event
// fits:
//
//	q, _ := eventqueue.New(eventqueue.DefaultConfig())
//	_ = q.OfferEvent(3, 0x1234)
//
//	w := eventqueue.NewPayloadWriter(16)
//	w.WriteUint8(7)
//	w.WriteFloat64(21.5)
//	_ = q.OfferExtendedEvent(4, w.Bytes(), w.Len())
//
// # Consuming
//
// Exactly one goroutine consumes. Wait parks it until a producer offers an
// event; Poll is the non-blocking form for callers running their own
// scheduling loop. Extended payloads are read with the queue's Reader between
// Start and End. End discards whatever was left unread so the next Wait
// returns the next header:
//
//	ev, _ := q.Wait(ctx)
//	if ev.Extended() {
//		r := q.Reader()
//		_ = r.Start(ev.Length())
//		b, _ := r.ReadUint8()
//		f, _ := r.ReadFloat64()
//		_ = r.End()
//	}
//
// Dispatcher wraps this loop and routes each event to the Handler registered
// for its type.
//
// # Alignment
//
// Reader delivers values on their natural boundary relative to the start of
// the payload: shorts on 2 bytes, ints and floats on 4, longs and doubles on
// 8. Skipped bytes are padding and count against the payload length.
// PayloadWriter produces exactly that layout.
package eventqueue
