package eventqueue

import (
	"io"
	"log/slog"
	"math"
)

const (
	offsetEmpty     = -1
	offsetExhausted = WordSize
)

var (
	_ io.Reader     = (*Reader)(nil)
	_ io.ByteReader = (*Reader)(nil)
)

// Reader decodes the payload of one extended event at a time.
//
// The payload is read out of the word queue word by word. Reader keeps the
// last fetched word and how many of its bytes were handed out, so that
// values smaller than a word can be read one after another. Values are read
// on their natural boundary relative to the payload start: shorts on 2 bytes,
// ints and floats on 4, longs and doubles on 8. Bytes skipped to reach a
// boundary are padding and count against the declared length.
//
// A Reader belongs to the consumer goroutine and is not safe for concurrent use.
type Reader struct {
	receive func() (uint32, bool)
	logger  *slog.Logger

	declared int
	consumed int

	word    uint32
	offset  int
	aligned bool // next fetched word starts on an 8-byte boundary
	pending uint32
}

func newReader(receive func() (uint32, bool), logger *slog.Logger) *Reader {
	return &Reader{
		receive: receive,
		logger:  logger,
		offset:  offsetEmpty,
	}
}

// Start prepares the reader for an extended event carrying length bytes.
// The first payload word is 8-byte aligned.
func (r *Reader) Start(length int) error {
	if length < 0 || length > MaxLength {
		return &ReadError{Op: "start", Need: length, Err: ErrInvalidArguments}
	}
	r.reset()
	r.declared = length
	r.aligned = true
	return nil
}

// End discards whatever the caller left unread, so the queue is positioned on
// the next event header, and resets the reader. The reset happens even when
// draining fails.
func (r *Reader) End() error {
	var err error
	remaining := r.Available()
	switch {
	case remaining < 0:
		err = &ReadError{Op: "end", Need: 0, Available: remaining, Err: ErrInvalidState}
	case remaining > 0:
		err = r.Skip(remaining)
	}
	if err != nil {
		r.logger.Warn("extended data reader did not finish properly, the event queue may not be purged",
			slog.Int("declared", r.declared),
			slog.Int("consumed", r.consumed),
			slog.String("error", err.Error()))
	}
	r.reset()
	return err
}

func (r *Reader) reset() {
	r.declared = 0
	r.consumed = 0
	r.word = 0
	r.offset = offsetEmpty
	r.pending = 0
}

// Available returns the number of declared bytes not yet charged.
// A negative value means the reader must be reset with End.
func (r *Reader) Available() int {
	return r.declared - r.consumed
}

// Declared returns the payload length passed to Start.
func (r *Reader) Declared() int {
	return r.declared
}

func (r *Reader) need(op string, n int) error {
	if avail := r.Available(); avail < n {
		return &ReadError{Op: op, Need: n, Available: avail, Err: ErrNoDataRemaining}
	}
	return nil
}

func (r *Reader) fetch(op string, n int) (uint32, error) {
	w, ok := r.receive()
	if !ok {
		return 0, &ReadError{Op: op, Need: n, Available: r.Available(), Err: ErrQueueUnderrun}
	}
	r.aligned = !r.aligned
	return w, nil
}

// discardPartial charges the unread bytes of a partially consumed word as
// padding and empties the buffer.
func (r *Reader) discardPartial() {
	if r.offset != offsetEmpty && r.offset < offsetExhausted {
		r.consumed += WordSize - r.offset
	}
	r.word = 0
	r.offset = offsetEmpty
}

func (r *Reader) readOne(op string) (byte, error) {
	if err := r.need(op, 1); err != nil {
		return 0, err
	}
	if r.offset == offsetEmpty || r.offset >= offsetExhausted {
		w, err := r.fetch(op, 1)
		if err != nil {
			return 0, err
		}
		r.word = w
		r.offset = 0
	}
	b := byte(r.word >> (8 * r.offset))
	r.offset++
	r.consumed++
	return b, nil
}

func (r *Reader) readTwo(op string) (uint16, error) {
	if err := r.need(op, 2); err != nil {
		return 0, err
	}
	if r.offset == offsetEmpty || r.offset >= 3 {
		// the last byte of the word cannot start a short
		if r.offset == 3 {
			r.consumed++
		}
		w, err := r.fetch(op, 2)
		if err != nil {
			return 0, err
		}
		r.word = w
		r.offset = 0
	}
	if r.offset == 1 {
		r.offset = 2
		r.consumed++
	}
	v := uint16(r.word >> (8 * r.offset))
	r.offset += 2
	r.consumed += 2
	return v, nil
}

func (r *Reader) readFour(op string) (uint32, error) {
	if err := r.need(op, 4); err != nil {
		return 0, err
	}
	r.discardPartial()
	w, err := r.fetch(op, 4)
	if err != nil {
		return 0, err
	}
	r.consumed += WordSize
	return w, nil
}

func (r *Reader) readEight(op string) (uint64, error) {
	if err := r.need(op, 8); err != nil {
		return 0, err
	}
	r.discardPartial()
	if !r.aligned {
		if _, err := r.fetch(op, 8); err != nil {
			return 0, err
		}
		r.consumed += WordSize
	}
	low, err := r.fetch(op, 8)
	if err != nil {
		return 0, err
	}
	r.consumed += WordSize
	r.pending = low

	high, err := r.fetch(op, 8)
	if err != nil {
		return 0, err
	}
	r.consumed += WordSize
	v := uint64(high)<<32 | uint64(r.pending)
	r.pending = 0
	return v, nil
}

// ReadByte returns the next byte. It implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	return r.readOne("read byte")
}

// ReadUint8 returns the next unsigned byte.
func (r *Reader) ReadUint8() (uint8, error) {
	return r.readOne("read unsigned byte")
}

// ReadInt8 returns the next signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.readOne("read byte")
	return int8(b), err
}

// ReadBool returns the next byte as a boolean, non-zero meaning true.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.readOne("read boolean")
	return b != 0, err
}

// ReadInt16 returns the next 2-byte aligned signed short.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.readTwo("read short")
	return int16(v), err
}

// ReadUint16 returns the next 2-byte aligned unsigned short.
func (r *Reader) ReadUint16() (uint16, error) {
	return r.readTwo("read unsigned short")
}

// ReadChar returns the next 2-byte aligned UTF-16 code unit.
func (r *Reader) ReadChar() (rune, error) {
	v, err := r.readTwo("read char")
	return rune(v), err
}

// ReadInt32 returns the next 4-byte aligned signed int.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.readFour("read int")
	return int32(v), err
}

// ReadUint32 returns the next 4-byte aligned unsigned int.
func (r *Reader) ReadUint32() (uint32, error) {
	return r.readFour("read int")
}

// ReadFloat32 returns the next 4-byte aligned IEEE-754 float.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.readFour("read float")
	return math.Float32frombits(v), err
}

// ReadInt64 returns the next 8-byte aligned signed long.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.readEight("read long")
	return int64(v), err
}

// ReadUint64 returns the next 8-byte aligned unsigned long.
func (r *Reader) ReadUint64() (uint64, error) {
	return r.readEight("read long")
}

// ReadFloat64 returns the next 8-byte aligned IEEE-754 double.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.readEight("read double")
	return math.Float64frombits(v), err
}

// ReadInto reads exactly n bytes into b[off:off+n].
//
// Nothing is consumed if fewer than n bytes remain or if b is too small.
// If the queue fails mid-read, ReadInto stops and returns how many bytes
// were stored.
func (r *Reader) ReadInto(b []byte, off, n int) (int, error) {
	if off < 0 || n < 0 {
		return 0, &ReadError{Op: "read", Need: n, Available: r.Available(), Err: ErrInvalidArguments}
	}
	if err := r.need("read", n); err != nil {
		return 0, err
	}
	if off > len(b) || n > len(b)-off {
		return 0, &ReadError{Op: "read", Need: n, Available: r.Available(), Err: ErrBufferTooSmall}
	}
	for i := 0; i < n; i++ {
		v, err := r.readOne("read")
		if err != nil {
			return i, err
		}
		b[off+i] = v
	}
	return n, nil
}

// Read implements io.Reader over the remaining payload bytes.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := r.Available()
	if n <= 0 {
		return 0, io.EOF
	}
	if n > len(p) {
		n = len(p)
	}
	return r.ReadInto(p, 0, n)
}

// Skip discards n bytes. Nothing is consumed if fewer than n bytes remain.
// Bytes skipped before a failure stay consumed.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return &ReadError{Op: "skip", Need: n, Available: r.Available(), Err: ErrInvalidArguments}
	}
	if err := r.need("skip", n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if _, err := r.readOne("skip"); err != nil {
			return err
		}
	}
	return nil
}
