package eventqueue

import (
	"encoding/binary"
	"fmt"
)

// Word layout: bit 31 is the extended flag, bits 30-24 the event type and
// bits 23-0 either the inline data (simple event) or the payload length in
// bytes (extended event header).
const (
	WordSize = 4

	MaxType   = 0x7F
	MaxData   = 0xFFFFFF
	MaxLength = MaxData

	extendedFlag = uint32(1) << 31
	typeShift    = 24
	typeMask     = uint32(MaxType) << typeShift
	dataMask     = uint32(MaxData)
)

// Event is a raw event word as carried by the word queue.
type Event uint32

// Extended reports whether e is the header of an extended event.
func (e Event) Extended() bool {
	return uint32(e)&extendedFlag != 0
}

// Type returns the 7-bit event type.
func (e Event) Type() uint8 {
	return uint8((uint32(e) & typeMask) >> typeShift)
}

// Data returns the 24-bit inline data of a simple event.
func (e Event) Data() uint32 {
	return uint32(e) & dataMask
}

// Length returns the payload length in bytes of an extended event header.
func (e Event) Length() int {
	return int(uint32(e) & dataMask)
}

func (e Event) String() string {
	if e.Extended() {
		return fmt.Sprintf("extended(type=%d, length=%d)", e.Type(), e.Length())
	}
	return fmt.Sprintf("event(type=%d, data=%#x)", e.Type(), e.Data())
}

// EncodeEvent builds the single word of a simple event.
func EncodeEvent(typ uint8, data uint32) (Event, error) {
	if typ > MaxType {
		return 0, fmt.Errorf("%w: type %d exceeds %d", ErrInvalidArguments, typ, MaxType)
	}
	if data > MaxData {
		return 0, fmt.Errorf("%w: data %#x does not fit 24 bits", ErrInvalidArguments, data)
	}
	return Event(uint32(typ)<<typeShift | data), nil
}

// EncodeExtendedHeader builds the header word of an extended event carrying
// length payload bytes.
func EncodeExtendedHeader(typ uint8, length int) (Event, error) {
	if typ > MaxType {
		return 0, fmt.Errorf("%w: type %d exceeds %d", ErrInvalidArguments, typ, MaxType)
	}
	if length < 0 || length > MaxLength {
		return 0, fmt.Errorf("%w: length %d out of range [0, %d]", ErrInvalidArguments, length, MaxLength)
	}
	return Event(extendedFlag | uint32(typ)<<typeShift | uint32(length)), nil
}

// PayloadWords returns the number of words needed to carry length bytes.
func PayloadWords(length int) int {
	return (length + WordSize - 1) / WordSize
}

// PackWords packs payload into little-endian words. The last word is zero
// padded when len(payload) is not a multiple of WordSize.
func PackWords(payload []byte) []uint32 {
	words := make([]uint32, PayloadWords(len(payload)))
	for i := range words {
		var buf [WordSize]byte
		copy(buf[:], payload[i*WordSize:])
		words[i] = binary.LittleEndian.Uint32(buf[:])
	}
	return words
}
