package eventqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArguments is returned when an event type, data or length is out
	// of range. Nothing has been sent.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrQueueFull is returned when the word queue cannot hold the whole event.
	ErrQueueFull = errors.New("queue is full")
	// ErrPartialEvent is returned when a send failed after part of an extended
	// event was already queued. It wraps ErrQueueFull.
	ErrPartialEvent = fmt.Errorf("partial event queued: %w", ErrQueueFull)
	// ErrQueueUnderrun means the queue ran dry before the declared payload
	// length was read: producer and consumer are out of sync.
	ErrQueueUnderrun = errors.New("no more data on the event queue")
	// ErrNoDataRemaining means the read needs more bytes than remain in the
	// extended event.
	ErrNoDataRemaining = errors.New("not enough bytes remaining in the extended data")
	// ErrBufferTooSmall means the destination cannot hold the requested bytes.
	ErrBufferTooSmall = errors.New("buffer is too small to store the event data")
	// ErrInvalidState means the reader charged more bytes than declared.
	ErrInvalidState = errors.New("extended data reader is in an invalid state")
	// ErrWakeTargetInvalid means the parked consumer identity no longer waits.
	ErrWakeTargetInvalid = errors.New("waiting consumer is no longer valid")
	// ErrTypeRegistered is returned when a handler already exists for a type.
	ErrTypeRegistered = errors.New("event type already registered")
	// ErrNoFreeType is returned when all event types are in use.
	ErrNoFreeType = errors.New("no free event type")
)

// ReadError describes a failed read of extended data.
type ReadError struct {
	Op        string // reader operation, e.g. "read int"
	Need      int    // bytes the operation needed
	Available int    // bytes remaining when the operation started
	Err       error  // underlying sentinel
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: need %d, available %d: %v", e.Op, e.Need, e.Available, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}
