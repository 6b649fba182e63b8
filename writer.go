package eventqueue

import (
	"encoding/binary"
	"math"
)

// PayloadWriter lays out typed values the way Reader expects them: every
// value starts on its natural boundary relative to the start of the payload,
// with zero padding in between.
type PayloadWriter struct {
	buf []byte
}

// NewPayloadWriter returns a writer with room for size bytes.
func NewPayloadWriter(size int) *PayloadWriter {
	return &PayloadWriter{buf: make([]byte, 0, size)}
}

func (w *PayloadWriter) align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

// Write appends p unaligned. It implements io.Writer and never fails.
func (w *PayloadWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// WriteByte appends one byte. It implements io.ByteWriter.
func (w *PayloadWriter) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// WriteUint8 appends an unsigned byte.
func (w *PayloadWriter) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteInt8 appends a signed byte.
func (w *PayloadWriter) WriteInt8(v int8) {
	w.buf = append(w.buf, byte(v))
}

// WriteBool appends 1 for true and 0 for false.
func (w *PayloadWriter) WriteBool(v bool) {
	var b byte
	if v {
		b = 1
	}
	w.buf = append(w.buf, b)
}

// WriteUint16 appends a 2-byte aligned short.
func (w *PayloadWriter) WriteUint16(v uint16) {
	w.align(2)
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteInt16 appends a 2-byte aligned signed short.
func (w *PayloadWriter) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

// WriteUint32 appends a 4-byte aligned int.
func (w *PayloadWriter) WriteUint32(v uint32) {
	w.align(4)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteInt32 appends a 4-byte aligned signed int.
func (w *PayloadWriter) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteFloat32 appends a 4-byte aligned float.
func (w *PayloadWriter) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteUint64 appends an 8-byte aligned long, low word first.
func (w *PayloadWriter) WriteUint64(v uint64) {
	w.align(8)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteInt64 appends an 8-byte aligned signed long.
func (w *PayloadWriter) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteFloat64 appends an 8-byte aligned double.
func (w *PayloadWriter) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// Bytes returns the payload. It aliases the writer's buffer.
func (w *PayloadWriter) Bytes() []byte {
	return w.buf
}

// Len returns the payload length in bytes.
func (w *PayloadWriter) Len() int {
	return len(w.buf)
}

// Reset empties the writer, keeping its buffer.
func (w *PayloadWriter) Reset() {
	w.buf = w.buf[:0]
}
