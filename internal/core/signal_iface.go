package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Frame is a raw outbound payload.
type Frame []byte

// Connection abstracts a bidirectional transport endpoint.
// Owned by the adapter; the hub and the caption service only hold references
// and close it solely when evicting a broken connection. Close must be idempotent.
type Connection interface {
	// TrySend queues f without blocking. It returns ErrBackpressure when the
	// outbound buffer is full and ErrClosed after Close.
	TrySend(f Frame) error
	Close()
}
