package eventqueue

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, capacity int, opts ...Option) *Queue {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	q, err := New(Config{Capacity: capacity}, opts...)
	require.NoError(t, err)
	return q
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Capacity: 0})
	assert.ErrorIs(t, err, ErrInvalidArguments)

	// capacity is irrelevant with an injected word queue
	q, err := New(Config{}, WithWordQueue(NewRing(4)))
	require.NoError(t, err)
	assert.Equal(t, 4, q.Free())
	assert.NotEmpty(t, q.ID())
}

func TestOfferEventRoundTrip(t *testing.T) {
	q := newTestQueue(t, 8)

	for _, typ := range []uint8{0, 1, 63, MaxType} {
		for _, data := range []uint32{0, 42, MaxData} {
			require.NoError(t, q.OfferEvent(typ, data))
			ev, _, ok := q.Poll()
			require.True(t, ok)
			assert.False(t, ev.Extended())
			assert.Equal(t, typ, ev.Type())
			assert.Equal(t, data, ev.Data())
		}
	}
}

func TestOfferRejectsInvalidArguments(t *testing.T) {
	q := newTestQueue(t, 8)

	assert.ErrorIs(t, q.OfferEvent(MaxType+1, 0), ErrInvalidArguments)
	assert.ErrorIs(t, q.OfferEvent(1, MaxData+1), ErrInvalidArguments)
	assert.ErrorIs(t, q.OfferExtendedEvent(MaxType+1, nil, 0), ErrInvalidArguments)
	assert.ErrorIs(t, q.OfferExtendedEvent(1, []byte{1, 2}, 3), ErrInvalidArguments)
	assert.ErrorIs(t, q.OfferExtendedEvent(1, []byte{1, 2}, -1), ErrInvalidArguments)

	assert.Equal(t, 8, q.Free())
	st := q.Stats()
	assert.Equal(t, uint64(5), st.OfferAttempts)
	assert.Equal(t, uint64(5), st.RejectedInvalid)
}

func TestOfferExtendedEventWireFormat(t *testing.T) {
	ring := NewRing(8)
	q := newTestQueue(t, 0, WithWordQueue(ring))

	require.NoError(t, q.OfferExtendedEvent(5, scenarioPayload(), 9))
	assert.Equal(t, 4, ring.Len())

	var words []uint32
	for {
		w, ok := ring.TryReceive()
		if !ok {
			break
		}
		words = append(words, w)
	}
	assert.Equal(t, []uint32{0x85000009, 0x04030201, 0x08070605, 0x00000009}, words)
}

func TestOfferExtendedEventPrefix(t *testing.T) {
	q := newTestQueue(t, 8)

	// only the first length bytes travel
	require.NoError(t, q.OfferExtendedEvent(2, scenarioPayload(), 2))
	ev, _, ok := q.Poll()
	require.True(t, ok)
	require.Equal(t, 2, ev.Length())

	r := q.Reader()
	require.NoError(t, r.Start(ev.Length()))
	s, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), s)
	require.NoError(t, r.End())

	_, _, ok = q.Poll()
	assert.False(t, ok)
}

func TestOfferExtendedEventNeedsRoomForWholeEvent(t *testing.T) {
	q := newTestQueue(t, 8)

	// header + 8 payload words do not fit
	err := q.OfferExtendedEvent(1, make([]byte, 32), 32)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, errors.Is(err, ErrPartialEvent))
	assert.Equal(t, 8, q.Free())

	// header + 7 payload words fill it exactly
	require.NoError(t, q.OfferExtendedEvent(1, make([]byte, 28), 28))
	assert.Equal(t, 0, q.Free())
	assert.ErrorIs(t, q.OfferEvent(1, 1), ErrQueueFull)

	st := q.Stats()
	assert.Equal(t, uint64(2), st.RejectedFull)
	assert.Equal(t, uint64(1), st.OfferedExtended)
	assert.Zero(t, st.PartialEvents)
}

func TestExtendedEventEarlyTermination(t *testing.T) {
	q := newTestQueue(t, 16)

	require.NoError(t, q.OfferExtendedEvent(4, make([]byte, 16), 16))
	require.NoError(t, q.OfferEvent(7, 42))

	ctx := context.Background()
	ev, err := q.Wait(ctx)
	require.NoError(t, err)
	require.True(t, ev.Extended())

	r := q.Reader()
	require.NoError(t, r.Start(ev.Length()))
	for i := 0; i < 3; i++ {
		_, err := r.ReadByte()
		require.NoError(t, err)
	}
	require.NoError(t, r.End())

	ev, err = q.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, ev.Extended())
	assert.Equal(t, uint8(7), ev.Type())
	assert.Equal(t, uint32(42), ev.Data())
}

// flakyWords fails every send after the first limit words.
type flakyWords struct {
	*Ring
	limit int
	sent  int
}

func (f *flakyWords) TrySend(w uint32) bool {
	if f.sent >= f.limit {
		return false
	}
	f.sent++
	return f.Ring.TrySend(w)
}

func TestOfferExtendedEventPartial(t *testing.T) {
	var logs bytes.Buffer
	words := &flakyWords{Ring: NewRing(8), limit: 2}
	q, err := New(Config{}, WithWordQueue(words), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	err = q.OfferExtendedEvent(1, scenarioPayload(), 9)
	require.ErrorIs(t, err, ErrPartialEvent)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, words.Len())
	assert.Equal(t, uint64(1), q.Stats().PartialEvents)
	assert.Contains(t, logs.String(), "partial event left in the queue")

	// the consumer sees the truncated event and runs dry
	ev, _, ok := q.Poll()
	require.True(t, ok)
	require.Equal(t, 9, ev.Length())

	r := q.Reader()
	require.NoError(t, r.Start(ev.Length()))
	v, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04030201), v)

	_, err = r.ReadUint32()
	require.ErrorIs(t, err, ErrQueueUnderrun)
	assert.ErrorIs(t, r.End(), ErrQueueUnderrun)
	assert.GreaterOrEqual(t, q.Stats().Underruns, uint64(1))
}

func TestPollPendingThenWake(t *testing.T) {
	q := newTestQueue(t, 8)

	_, ready, ok := q.Poll()
	require.False(t, ok)
	require.NotNil(t, ready)
	assert.True(t, q.Waiting())

	select {
	case <-ready:
		t.Fatal("woken before any event was offered")
	default:
	}

	require.NoError(t, q.OfferEvent(3, 9))
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
	assert.False(t, q.Waiting())

	ev, _, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, uint8(3), ev.Type())

	st := q.Stats()
	assert.Equal(t, uint64(1), st.Parks)
	assert.Equal(t, uint64(1), st.Wakes)
	assert.Equal(t, uint64(1), st.Received)
}

func TestWaitBlocksUntilOffer(t *testing.T) {
	q := newTestQueue(t, 8)

	got := make(chan Event, 1)
	go func() {
		ev, err := q.Wait(context.Background())
		if err == nil {
			got <- ev
		}
	}()

	require.Eventually(t, q.Waiting, time.Second, time.Millisecond)
	require.NoError(t, q.OfferEvent(9, 0x10))

	select {
	case ev := <-got:
		assert.Equal(t, uint8(9), ev.Type())
		assert.Equal(t, uint32(0x10), ev.Data())
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}
}

func TestWaitCancelledAbandonsWaiter(t *testing.T) {
	var logs bytes.Buffer
	q, err := New(Config{Capacity: 8}, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = q.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the offer succeeds, only the wake fails
	require.NoError(t, q.OfferEvent(1, 2))
	st := q.Stats()
	assert.Equal(t, uint64(1), st.WakeFailures)
	assert.Zero(t, st.Wakes)
	assert.Contains(t, logs.String(), "can't resume the waiting consumer")

	ev, _, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, uint32(2), ev.Data())
}

func TestConcurrentProducers(t *testing.T) {
	const (
		producers   = 8
		perProducer = 500
	)
	q := newTestQueue(t, 64)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p uint16) {
			defer wg.Done()
			w := NewPayloadWriter(16)
			for seq := uint32(0); seq < perProducer; seq++ {
				var err error
				if seq%3 == 0 {
					err = retryFull(func() error { return q.OfferEvent(1, uint32(p)<<16|seq) })
				} else {
					w.Reset()
					w.WriteUint16(p)
					w.WriteUint32(seq)
					w.WriteUint64(uint64(p)<<32 | uint64(seq))
					err = retryFull(func() error { return q.OfferExtendedEvent(2, w.Bytes(), w.Len()) })
				}
				if err != nil {
					t.Errorf("producer %d: %v", p, err)
					return
				}
			}
		}(uint16(p))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	next := make([]uint32, producers)
	r := q.Reader()
	for i := 0; i < producers*perProducer; i++ {
		ev, err := q.Wait(ctx)
		require.NoError(t, err)

		var (
			p   uint16
			seq uint32
		)
		if ev.Extended() {
			require.Equal(t, uint8(2), ev.Type())
			require.NoError(t, r.Start(ev.Length()))
			p, err = r.ReadUint16()
			require.NoError(t, err)
			seq, err = r.ReadUint32()
			require.NoError(t, err)
			check, err := r.ReadUint64()
			require.NoError(t, err)
			require.Equal(t, uint64(p)<<32|uint64(seq), check)
			require.NoError(t, r.End())
		} else {
			require.Equal(t, uint8(1), ev.Type())
			p, seq = uint16(ev.Data()>>16), ev.Data()&0xFFFF
		}

		require.Less(t, int(p), producers)
		require.Equal(t, next[p], seq, "producer %d out of order", p)
		next[p]++
	}
	wg.Wait()

	for p, n := range next {
		assert.Equal(t, uint32(perProducer), n, "producer %d", p)
	}
	_, _, ok := q.Poll()
	assert.False(t, ok)
}

func retryFull(offer func() error) error {
	for {
		err := offer()
		if !errors.Is(err, ErrQueueFull) {
			return err
		}
		runtime.Gosched()
	}
}
