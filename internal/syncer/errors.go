package syncer

import "errors"

var (
	// ErrAlreadyBound is returned when binding an object id twice.
	ErrAlreadyBound = errors.New("object already bound")

	// ErrNotBound is returned when operating on an object id that was
	// never bound.
	ErrNotBound = errors.New("object not bound")

	// ErrConnection wraps transport failures while establishing the
	// remote connection.
	ErrConnection = errors.New("connection failed")

	// ErrSyncTimeout is returned when a bounded wait for a sync state
	// elapses. Recoverable: the caller decides whether to keep waiting.
	ErrSyncTimeout = errors.New("timed out waiting for sync state")

	// ErrControllerClosed is returned when using a controller after Close.
	ErrControllerClosed = errors.New("controller closed")
)
