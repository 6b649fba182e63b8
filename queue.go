package eventqueue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Queue is a multi-producer, single-consumer event queue over a bounded
// queue of words.
//
// Producers call OfferEvent and OfferExtendedEvent from any goroutine. One
// consumer goroutine calls Poll or Wait to get the next event word and, for
// extended events, decodes the payload with Reader.
type Queue struct {
	id      string
	words   WordQueue
	logger  *slog.Logger
	metrics MetricsRecorder

	// gate serializes producers so the words of one event are never
	// interleaved with another event.
	gate sync.Mutex
	// composing is non-zero while a producer is sending an event.
	composing atomic.Int32

	parker parker
	reader *Reader
	stats  counters
}

// New creates a queue from cfg.
func New(cfg Config, opts ...Option) (*Queue, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.words == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		o.words = NewRing(cfg.Capacity)
	}

	q := &Queue{
		id:      uuid.New().String(),
		words:   o.words,
		metrics: o.metrics,
	}
	q.logger = o.logger.With(slog.String("queue_id", q.id))
	q.reader = newReader(q.receivePayloadWord, q.logger)
	return q, nil
}

// ID returns the queue instance identifier used in logs.
func (q *Queue) ID() string {
	return q.id
}

// Reader returns the consumer's extended data reader. There is one per queue.
func (q *Queue) Reader() *Reader {
	return q.reader
}

// Free returns the number of words that can currently be offered.
func (q *Queue) Free() int {
	return q.words.Free()
}

// OfferEvent queues a simple event carrying 24 bits of data.
// Returns ErrInvalidArguments or ErrQueueFull on failure.
// May be called concurrently from many goroutines.
func (q *Queue) OfferEvent(typ uint8, data uint32) error {
	q.stats.offerAttempts.Add(1)

	ev, err := EncodeEvent(typ, data)
	if err != nil {
		q.stats.rejectedInvalid.Add(1)
		q.metrics.RecordOffer(context.Background(), false, 0, err)
		return err
	}

	q.gate.Lock()
	defer q.gate.Unlock()

	if !q.words.TrySend(uint32(ev)) {
		q.stats.rejectedFull.Add(1)
		q.logger.Debug("event queue is full, event dropped",
			slog.Int("type", int(typ)),
			slog.Uint64("data", uint64(data)))
		q.metrics.RecordOffer(context.Background(), false, 1, ErrQueueFull)
		return ErrQueueFull
	}

	q.stats.offered.Add(1)
	q.metrics.RecordOffer(context.Background(), false, 1, nil)
	q.wakeConsumer()
	return nil
}

// OfferExtendedEvent queues an extended event carrying the first length
// bytes of payload.
//
// The event is accepted only if the queue has room for the header and every
// payload word; otherwise ErrQueueFull is returned and nothing is sent. If a
// send still fails midway, ErrPartialEvent is returned and the words already
// sent stay in the queue.
func (q *Queue) OfferExtendedEvent(typ uint8, payload []byte, length int) error {
	q.stats.offerAttempts.Add(1)

	header, err := EncodeExtendedHeader(typ, length)
	if err == nil && length > len(payload) {
		err = fmt.Errorf("%w: length %d exceeds payload size %d", ErrInvalidArguments, length, len(payload))
	}
	if err != nil {
		q.stats.rejectedInvalid.Add(1)
		q.metrics.RecordOffer(context.Background(), true, 0, err)
		return err
	}
	words := PackWords(payload[:length])
	total := 1 + len(words)

	q.gate.Lock()
	defer q.gate.Unlock()

	q.composing.Add(1)
	defer q.composing.Add(-1)

	if free := q.words.Free(); free < total {
		q.stats.rejectedFull.Add(1)
		q.logger.Debug("not enough room in the event queue for the extended event",
			slog.Int("type", int(typ)),
			slog.Int("length", length),
			slog.Int("words", total),
			slog.Int("free", free))
		q.metrics.RecordOffer(context.Background(), true, total, ErrQueueFull)
		return ErrQueueFull
	}

	if !q.words.TrySend(uint32(header)) {
		q.stats.rejectedFull.Add(1)
		q.logger.Error("failed to send extended event header",
			slog.Int("type", int(typ)),
			slog.Int("length", length))
		q.metrics.RecordOffer(context.Background(), true, total, ErrQueueFull)
		return ErrQueueFull
	}
	for i, w := range words {
		if !q.words.TrySend(w) {
			q.stats.partialEvents.Add(1)
			q.logger.Error("failed to send extended event payload, partial event left in the queue",
				slog.Int("type", int(typ)),
				slog.Int("length", length),
				slog.Int("sent_words", i+1),
				slog.Int("words", total))
			err := fmt.Errorf("%w: sent %d of %d words", ErrPartialEvent, i+1, total)
			q.metrics.RecordOffer(context.Background(), true, total, err)
			return err
		}
	}

	q.stats.offeredExtended.Add(1)
	q.metrics.RecordOffer(context.Background(), true, total, nil)
	q.wakeConsumer()
	return nil
}

// wakeConsumer resumes the parked consumer, if any. Called with the gate held.
func (q *Queue) wakeConsumer() {
	id, err := q.parker.wake()
	if id == 0 {
		return
	}
	q.metrics.RecordWake(context.Background(), err)
	if err != nil {
		q.stats.wakeFailures.Add(1)
		q.logger.Warn("can't resume the waiting consumer",
			slog.Uint64("waiter", uint64(id)),
			slog.String("error", err.Error()))
		return
	}
	q.stats.wakes.Add(1)
}

// Waiting reports whether the consumer is parked waiting for an event.
func (q *Queue) Waiting() bool {
	return q.parker.parked() != 0
}

// Poll returns the next event word if one is ready.
//
// Otherwise the caller is registered as the parked consumer and Poll returns
// a channel that is closed when a producer offers the next event; the caller
// then polls again. Only the latest registration is remembered.
// Must be called from the single consumer goroutine.
func (q *Queue) Poll() (Event, <-chan struct{}, bool) {
	ev, w, ok := q.poll()
	if ok {
		return ev, nil, true
	}
	return 0, w.ready, false
}

func (q *Queue) poll() (Event, *waiter, bool) {
	if w, ok := q.words.TryReceive(); ok {
		q.parker.release()
		q.stats.received.Add(1)
		return Event(w), nil, true
	}

	wt := q.parker.park()
	q.stats.parks.Add(1)

	// a producer may have sent between the receive and the registration
	if w, ok := q.words.TryReceive(); ok {
		q.parker.release()
		q.stats.received.Add(1)
		return Event(w), nil, true
	}
	return 0, wt, false
}

// Wait returns the next event word, parking the caller until a producer
// offers one. With a context that is never done Wait may block forever.
// If ctx ends first, the parked identity is abandoned and a producer trying
// to wake it logs ErrWakeTargetInvalid.
// Must be called from the single consumer goroutine.
func (q *Queue) Wait(ctx context.Context) (Event, error) {
	for {
		ev, w, ok := q.poll()
		if ok {
			return ev, nil
		}
		select {
		case <-w.ready:
		case <-ctx.Done():
			q.parker.abandon(w.id)
			return 0, ctx.Err()
		}
	}
}

// receivePayloadWord feeds the Reader. The header of an event can be
// received before its producer has sent every payload word, so while a
// producer is composing an empty queue is not an underrun yet.
func (q *Queue) receivePayloadWord() (uint32, bool) {
	var spins uint32
	for {
		if w, ok := q.words.TryReceive(); ok {
			return w, true
		}
		if q.composing.Load() == 0 {
			if w, ok := q.words.TryReceive(); ok {
				return w, true
			}
			q.stats.underruns.Add(1)
			return 0, false
		}
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}
