package vapoursynth

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrNotAvailable is returned when the native engine was not compiled in.
	ErrNotAvailable = errors.New("vapoursynth: native engine not available - build with -tags vapoursynth")
	// ErrInvalidNode is returned by NewNode for a null or malformed reference.
	ErrInvalidNode = errors.New("vapoursynth: invalid node reference")
)

const expiredMessage = "vapoursynth: frame error message used after its callback returned"

// GetFrameError is the error produced when the engine fails to compute a
// frame. Errors from GetFrame own their text. Errors delivered to a
// GetFrameAsync callback borrow the engine's text, which is only valid until
// the callback returns; use Owned to keep one.
type GetFrameError struct {
	msg      []byte
	borrowed bool
	expired  atomic.Bool
}

func newOwnedError(msg []byte) *GetFrameError {
	owned := make([]byte, len(msg))
	copy(owned, msg)
	return &GetFrameError{msg: owned}
}

func newBorrowedError(msg []byte) *GetFrameError {
	return &GetFrameError{msg: msg, borrowed: true}
}

// Error implements error.
func (e *GetFrameError) Error() string {
	return e.Message()
}

// Message returns the engine diagnostic.
func (e *GetFrameError) Message() string {
	if e.borrowed && e.expired.Load() {
		return expiredMessage
	}
	return string(e.msg)
}

// Borrowed reports whether the message is a view into engine memory.
func (e *GetFrameError) Borrowed() bool {
	return e.borrowed
}

// Owned returns an error holding its own copy of the message.
func (e *GetFrameError) Owned() *GetFrameError {
	if !e.borrowed {
		return e
	}
	if e.expired.Load() {
		return &GetFrameError{msg: []byte(expiredMessage)}
	}
	return newOwnedError(e.msg)
}

// expire drops the view into engine memory once the callback has returned.
func (e *GetFrameError) expire() {
	if e.borrowed {
		e.expired.Store(true)
	}
}
