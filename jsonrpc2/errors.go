package jsonrpc2

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned by a Transport when a write is attempted while
	// the connection is not open.
	ErrNotOpen = errors.New("transport is not open")

	// ErrClosed is returned when using a Remote or Transport after Close, and
	// is used to reject calls that were still pending when it was closed.
	ErrClosed = errors.New("remote closed")

	// ErrCallExpired is the default rejection for calls removed by
	// Remote.Expire or Remote.ExpirePending.
	ErrCallExpired = errors.New("call expired before a response was received")

	// ErrCallEvicted rejects the oldest pending calls when PendingLimit is
	// reached.
	ErrCallEvicted = errors.New("call evicted from the pending table")

	// ErrDuplicateCallID means an ID generator produced a token that is still
	// outstanding.
	ErrDuplicateCallID = errors.New("duplicate call id")

	// ErrReplyNotAvailable is returned when answering an IncomingCall that was
	// not received from a Remote.
	ErrReplyNotAvailable = errors.New("reply not available")

	// ErrRetryLimit is returned by Reconnector.Run when its backoff policy
	// gives up.
	ErrRetryLimit = errors.New("reconnection attempts exhausted")
)

// DecodeError is returned by codecs when a frame could not be decoded into a
// message. The frame is dropped and reading continues.
type DecodeError struct {
	Raw []byte
	Err error
}

func (err DecodeError) Error() string {
	return fmt.Sprintf("failed to decode message: %s", err.Err)
}

func (err DecodeError) Cause() error {
	return err.Err
}

func (err DecodeError) Unwrap() error {
	return err.Err
}

// ErrContextMissingValue is returned when a context is missing an expected value.
type ErrContextMissingValue struct {
	Key serviceContext
}

func (err ErrContextMissingValue) Error() string {
	return fmt.Sprintf("context missing value: %s", err.Key)
}
